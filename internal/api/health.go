package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nebulous/internal/events"
)

var startTime = time.Now()

// HealthHandler reports liveness and readiness, checking both the
// database and the events.Client's NATS connection.
type HealthHandler struct {
	db     *gorm.DB
	events *events.Client
}

func NewHealthHandler(db *gorm.DB, eventsClient *events.Client) *HealthHandler {
	return &HealthHandler{db: db, events: eventsClient}
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Uptime    string                 `json:"uptime"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]healthCheck `json:"checks,omitempty"`
	System    *systemInfo            `json:"system,omitempty"`
}

type healthCheck struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type systemInfo struct {
	Goroutines  int    `json:"goroutines"`
	MemoryAlloc uint64 `json:"memory_alloc_mb"`
	MemorySys   uint64 `json:"memory_sys_mb"`
	NumCPU      int    `json:"num_cpu"`
	GoVersion   string `json:"go_version"`
}

// Health answers liveness; ?detailed=true adds dependency checks and
// runtime stats.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := healthResponse{
		Status:    "healthy",
		Service:   "nebulous",
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if c.Query("detailed") == "true" {
		resp.Checks = h.runChecks()
		resp.System = systemStats()
	}
	c.JSON(http.StatusOK, resp)
}

// Ready answers whether the service's dependencies are reachable; 503
// when any check fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := h.runChecks()
	allHealthy := true
	for _, chk := range checks {
		if chk.Status != "healthy" {
			allHealthy = false
		}
	}

	resp := healthResponse{
		Service:   "nebulous",
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}

func (h *HealthHandler) runChecks() map[string]healthCheck {
	return map[string]healthCheck{
		"database": h.checkDatabase(),
		"events":   h.checkEvents(),
	}
}

func (h *HealthHandler) checkDatabase() healthCheck {
	sqlDB, err := h.db.DB()
	if err != nil {
		return healthCheck{Status: "unhealthy", Message: "failed to get database handle"}
	}
	if err := sqlDB.Ping(); err != nil {
		return healthCheck{Status: "unhealthy", Message: "database ping failed"}
	}
	stats := sqlDB.Stats()
	return healthCheck{
		Status:  "healthy",
		Message: "database connected",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		},
	}
}

func (h *HealthHandler) checkEvents() healthCheck {
	if h.events == nil || !h.events.IsConnected() {
		return healthCheck{Status: "unhealthy", Message: "events publisher disconnected"}
	}
	return healthCheck{Status: "healthy", Message: "events publisher connected"}
}

func systemStats() *systemInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return &systemInfo{
		Goroutines:  runtime.NumGoroutine(),
		MemoryAlloc: mem.Alloc / 1024 / 1024,
		MemorySys:   mem.Sys / 1024 / 1024,
		NumCPU:      runtime.NumCPU(),
		GoVersion:   runtime.Version(),
	}
}
