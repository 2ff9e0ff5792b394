package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nebulous/internal/apierrors"
	"nebulous/internal/events"
	"nebulous/internal/middleware"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/queue"
	"nebulous/internal/repository"
)

// ContainerHandler serves /v1/containers. Admission itself (queue check,
// adapter selection) lives in internal/scheduler and runs on the
// reconciler's next tick; Create just persists the intent and wakes it.
type ContainerHandler struct {
	store     *repository.Store
	registry  *platform.Registry
	queue     *queue.Client
	events    *events.Client
	rootOwner string
	log       *logrus.Entry
}

func NewContainerHandler(store *repository.Store, registry *platform.Registry, q *queue.Client, ev *events.Client, rootOwner string, log *logrus.Logger) *ContainerHandler {
	return &ContainerHandler{
		store:     store,
		registry:  registry,
		queue:     q,
		events:    ev,
		rootOwner: rootOwner,
		log:       log.WithField("component", "api.containers"),
	}
}

// containerRequest is the wire shape of a declare request.
type containerRequest struct {
	Platform string `json:"platform"`
	Metadata struct {
		Name      string            `json:"name"`
		Namespace string            `json:"namespace"`
		Labels    map[string]string `json:"labels"`
		OwnerRef  string            `json:"owner_ref"`
	} `json:"metadata"`
	Image        string                     `json:"image" binding:"required"`
	Env          []models.EnvVar            `json:"env"`
	Command      string                     `json:"command"`
	Args         string                     `json:"args"`
	Volumes      []models.VolumePath        `json:"volumes"`
	Accelerators []string                   `json:"accelerators"`
	Resources    models.ContainerResources  `json:"resources"`
	Meters       []models.Meter             `json:"meters"`
	Restart      string                     `json:"restart"`
	Queue        string                     `json:"queue"`
	Ports        []models.PortRequest       `json:"ports"`
	ProxyPort    int16                      `json:"proxy_port"`
	SSHKeys      []models.SSHKey            `json:"ssh_keys"`
	HealthCheck  *models.HealthCheck        `json:"health_check"`
	Authz        *models.AuthzConfig        `json:"authz"`
	Timeout      string                     `json:"timeout"`
	Platforms    []string                   `json:"platforms"`
}

func (req containerRequest) toSpec() platform.ContainerSpec {
	return platform.ContainerSpec{
		Namespace:    req.Metadata.Namespace,
		Name:         req.Metadata.Name,
		Image:        req.Image,
		Env:          req.Env,
		Command:      req.Command,
		Args:         req.Args,
		Volumes:      req.Volumes,
		Accelerators: req.Accelerators,
		Resources:    req.Resources,
		Meters:       req.Meters,
		Restart:      req.Restart,
		Queue:        req.Queue,
		Ports:        req.Ports,
		ProxyPort:    req.ProxyPort,
		SSHKeys:      req.SSHKeys,
		HealthCheck:  req.HealthCheck,
		Authz:        req.Authz,
		Timeout:      req.Timeout,
		Labels:       req.Metadata.Labels,
		Platform:     req.Platform,
		Platforms:    req.Platforms,
	}
}

// Create declares a container and wakes the reconciler so the first
// reconcile step (admission, queue check, adapter dispatch) doesn't wait
// for the next scheduled tick.
func (h *ContainerHandler) Create(c *gin.Context) {
	var req containerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ValidationErrorResponse(c, "body", err.Error())
		return
	}
	if req.Metadata.Namespace == "" || req.Metadata.Name == "" {
		ValidationErrorResponse(c, "metadata", "namespace and name are required")
		return
	}

	owner := middleware.GetOwner(c)
	token := c.GetHeader("Authorization")
	spec := req.toSpec()

	var record *models.Container
	var err error
	if req.Platform != "" {
		adapter, ok := h.registry.Get(req.Platform)
		if !ok {
			ValidationErrorResponse(c, "platform", "unknown platform "+req.Platform)
			return
		}
		record, err = adapter.Declare(c.Request.Context(), spec, owner, token)
	} else {
		record, err = platform.DeclareContainer(spec, owner, "")
	}
	if err != nil {
		RespondError(c, h.log, err)
		return
	}

	h.queue.WakeReconciler(c.Request.Context())
	if h.events != nil {
		_ = h.events.PublishDeclared(c.Request.Context(), events.ContainerEvent{
			ContainerID: record.ID,
			Namespace:   record.Namespace,
			Name:        record.Name,
		})
	}

	SuccessResponse(c, http.StatusCreated, "container declared", record)
}

// List returns every container the caller can see: every record for the
// root owner, only the caller's own records otherwise.
func (h *ContainerHandler) List(c *gin.Context) {
	owner := middleware.GetOwner(c)
	var (
		containers []models.Container
		err        error
	)
	if owner == h.rootOwner {
		containers, err = h.store.Containers.FindAll(c.Request.Context())
	} else {
		containers, err = h.store.Containers.FindByOwners(c.Request.Context(), []string{owner})
	}
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "containers listed", containers)
}

// resolve fetches a container by namespace/name (the /:namespace/:name
// routes) or by id (the /id/:id routes) and enforces the owner-or-root
// visibility rule.
func (h *ContainerHandler) resolve(c *gin.Context) (*models.Container, bool) {
	ns := c.Param("namespace")
	name := c.Param("name")
	var (
		record *models.Container
		err    error
	)
	if ns != "" && name != "" {
		record, err = h.store.Containers.FindByNamespaceName(c.Request.Context(), ns, name)
	} else {
		record, err = h.store.Containers.FindByID(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		RespondError(c, h.log, err)
		return nil, false
	}

	owner := middleware.GetOwner(c)
	if record.Owner != owner && owner != h.rootOwner {
		RespondError(c, h.log, apierrors.NewNotFoundError("container", record.ID))
		return nil, false
	}
	return record, true
}

func (h *ContainerHandler) Get(c *gin.Context) {
	record, ok := h.resolve(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, "container found", record)
}

// Delete removes the adapter's external resource and every side-resource
// Declare/ProvisionSideEnv created for it (agent-key and ssh-keypair
// secrets, mesh device), all best-effort, then the record itself.
func (h *ContainerHandler) Delete(c *gin.Context) {
	record, ok := h.resolve(c)
	if !ok {
		return
	}
	if record.Platform != nil {
		if adapter, ok := h.registry.Get(*record.Platform); ok {
			if err := adapter.Delete(c.Request.Context(), record); err != nil {
				h.log.WithError(err).WithField("container_id", record.ID).Warn("adapter delete failed, removing record anyway")
			}
		}
	}
	if err := platform.DeleteContainer(c.Request.Context(), record); err != nil {
		RespondError(c, h.log, err)
		return
	}
	if h.events != nil {
		_ = h.events.PublishDeleted(context.Background(), events.ContainerEvent{
			ContainerID: record.ID,
			Namespace:   record.Namespace,
			Name:        record.Name,
		})
	}
	SuccessResponse(c, http.StatusOK, "container deleted", nil)
}

// Logs proxies to the owning adapter's Logs, delegating log storage and
// retention entirely to the platform per spec's Non-goals.
func (h *ContainerHandler) Logs(c *gin.Context) {
	record, ok := h.resolve(c)
	if !ok {
		return
	}
	adapter, err := h.adapterFor(record)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	logs, err := adapter.Logs(c.Request.Context(), record)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "logs fetched", gin.H{"logs": logs})
}

type execRequest struct {
	Command string `json:"command" binding:"required"`
}

// Exec runs a one-shot command inside the workload via its adapter.
func (h *ContainerHandler) Exec(c *gin.Context) {
	record, ok := h.resolve(c)
	if !ok {
		return
	}
	var req execRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ValidationErrorResponse(c, "command", err.Error())
		return
	}
	adapter, err := h.adapterFor(record)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	output, err := adapter.Exec(c.Request.Context(), record, req.Command)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "command executed", gin.H{"output": output})
}

func (h *ContainerHandler) adapterFor(record *models.Container) (platform.Adapter, error) {
	if record.Platform == nil || *record.Platform == "" {
		return nil, apierrors.NewUnschedulableError("container has not been placed on a platform yet")
	}
	adapter, ok := h.registry.Get(*record.Platform)
	if !ok {
		return nil, apierrors.NewUnschedulableError("unknown platform " + *record.Platform)
	}
	return adapter, nil
}
