// Package platform defines the contract every backend (GPU-rental,
// Kubernetes, IaaS compute, a peer Nebulous control plane, local/remote
// Docker) implements, and a registry the scheduler and reconciler use to
// dispatch by name. Adapters are selected through this interface +
// registry rather than an open type-switch, keeping the dispatch set
// closed and each backend's logic isolated to its own package.
package platform

import (
	"context"

	"nebulous/internal/models"
)

// ContainerSpec is the normalized request a caller hands to Declare,
// independent of HTTP transport concerns.
type ContainerSpec struct {
	Namespace     string
	Name          string
	Image         string
	Env           []models.EnvVar
	Command       string
	Args          string
	Volumes       []models.VolumePath
	Accelerators  []string
	Resources     models.ContainerResources
	Meters        []models.Meter
	Restart       string
	Queue         string
	Ports         []models.PortRequest
	ProxyPort     int16
	SSHKeys       []models.SSHKey
	HealthCheck   *models.HealthCheck
	Authz         *models.AuthzConfig
	Timeout       string
	Labels        map[string]string
	Platform      string
	Platforms     []string
}

// Status reports whether an adapter can currently accept new work.
type Status string

const (
	Ready         Status = "Ready"
	Unavailable   Status = "Unavailable"
	DoNotSchedule Status = "DoNotSchedule"
)

// Adapter is the contract every platform backend implements.
type Adapter interface {
	// Name identifies the adapter for the registry and for
	// Container.Platform.
	Name() string
	// Status reports current schedulability.
	Status(ctx context.Context) Status
	// Declare validates spec, allocates an id, persists the container in
	// status=Defined, and provisions side-resources (agent key secret,
	// SSH keypair secret). No external provisioning happens here.
	Declare(ctx context.Context, spec ContainerSpec, owner, apiKey string) (*models.Container, error)
	// Reconcile drives one step of the state machine for record. It must
	// be idempotent and a no-op when record's status is terminal.
	Reconcile(ctx context.Context, record *models.Container) error
	// Logs fetches the most recent output of the workload.
	Logs(ctx context.Context, record *models.Container) (string, error)
	// Exec runs a one-shot command inside the workload.
	Exec(ctx context.Context, record *models.Container, command string) (string, error)
	// Delete removes the external resource, best effort, and lets the
	// caller delete the record afterward.
	Delete(ctx context.Context, record *models.Container) error
	// AcceleratorMap translates vendor-neutral accelerator names (A100,
	// H100, T4, …) to this adapter's provider-specific SKU strings.
	AcceleratorMap() map[string]string
	// CommonEnv produces the baseline environment every workload receives.
	CommonEnv(record *models.Container) map[string]string
}

// Registry holds the closed set of configured adapters, keyed by name.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns every registered adapter name, in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every registered adapter, in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}
