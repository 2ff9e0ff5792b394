package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"nebulous/internal/events"
	"nebulous/internal/metrics"
	"nebulous/internal/middleware"
	"nebulous/internal/platform"
	"nebulous/internal/queue"
	"nebulous/internal/repository"
	"nebulous/internal/vault"
)

// RouterConfig bundles everything NewRouter needs to wire the route table.
type RouterConfig struct {
	DB         *gorm.DB
	Store      *repository.Store
	Registry   *platform.Registry
	Queue      *queue.Client
	Events     *events.Client
	Secrets    *vault.SecretService
	Metrics    *metrics.Metrics
	Log        *logrus.Logger
	RootOwner  string
	RootAPIKey string
}

// NewRouter builds the gin engine and the full /v1 route table: global
// middleware in order (CORS, recovery, request id, structured logging,
// metrics), unauthenticated /healthz, /readyz and /metrics, then the /v1
// group behind bearer auth.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}

	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(cfg.Log))
	router.Use(cfg.Metrics.Middleware())

	health := NewHealthHandler(cfg.DB, cfg.Events)
	router.GET("/healthz", health.Health)
	router.GET("/readyz", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))

	containers := NewContainerHandler(cfg.Store, cfg.Registry, cfg.Queue, cfg.Events, cfg.RootOwner, cfg.Log)
	secrets := NewSecretHandler(cfg.Store, cfg.Secrets, cfg.RootOwner, cfg.Log)
	users := NewUserHandler(cfg.RootOwner)

	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(cfg.RootAPIKey, cfg.RootOwner))
	{
		v1.POST("/containers", containers.Create)
		v1.GET("/containers", containers.List)
		v1.GET("/containers/id/:id", containers.Get)
		v1.DELETE("/containers/id/:id", containers.Delete)
		v1.GET("/containers/id/:id/logs", containers.Logs)
		v1.POST("/containers/id/:id/exec", containers.Exec)
		v1.GET("/containers/:namespace/:name", containers.Get)
		v1.DELETE("/containers/:namespace/:name", containers.Delete)
		v1.GET("/containers/:namespace/:name/logs", containers.Logs)
		v1.POST("/containers/:namespace/:name/exec", containers.Exec)

		v1.POST("/secrets", secrets.Create)
		v1.GET("/secrets", secrets.List)
		v1.GET("/secrets/:id", secrets.Get)
		v1.DELETE("/secrets/:id", secrets.Delete)

		v1.POST("/users/me", users.Me)
	}

	return router
}
