package models

import (
	"time"

	"github.com/google/uuid"
)

// ContainerStatusDoc is the structured document stored in Container.Status.
// Adapters never write free-form strings; they always produce one of
// these, and Store.UpdateStatus merges only the fields actually supplied.
type ContainerStatusDoc struct {
	Status       string            `json:"status"`
	Message      string            `json:"message,omitempty"`
	Accelerator  string            `json:"accelerator,omitempty"`
	PublicPorts  []int32           `json:"public_ports,omitempty"`
	CostPerHr    *float64          `json:"cost_per_hr,omitempty"`
	TailnetURL   string            `json:"tailnet_url,omitempty"`
	Ready        bool              `json:"ready"`
	ExtraLabels  map[string]string `json:"extra_labels,omitempty"`
}

// EnvVar is a single environment variable, optionally sourced from a secret.
type EnvVar struct {
	Key        string `json:"key"`
	Value      string `json:"value,omitempty"`
	SecretName string `json:"secret_name,omitempty"`
}

// VolumePath describes a workload volume mount backed by the object store.
type VolumePath struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Resync      bool   `json:"resync,omitempty"`
	Continuous  bool   `json:"continuous,omitempty"`
}

// ContainerResources captures optional CPU/memory bounds.
type ContainerResources struct {
	MinCPU    string `json:"min_cpu,omitempty"`
	MinMemory string `json:"min_memory,omitempty"`
	MaxCPU    string `json:"max_cpu,omitempty"`
	MaxMemory string `json:"max_memory,omitempty"`
}

// PortRequest asks the adapter to expose a container port.
type PortRequest struct {
	Port     int32  `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// SSHKey is an authorized public key to install in the workload.
type SSHKey struct {
	PublicKey string `json:"public_key"`
}

// HealthCheck configures an HTTP liveness probe the adapter runs against
// the workload once it believes it is running.
type HealthCheck struct {
	Path string `json:"path"`
	Port int32  `json:"port"`
}

// AuthzConfig is an opaque authorization policy attached to a container;
// the core only stores and forwards it, adapters and the API layer
// interpret it.
type AuthzConfig struct {
	Enabled    bool     `json:"enabled"`
	Principals []string `json:"principals,omitempty"`
}

// Meter is an opaque billing hint forwarded to the metering pipeline.
type Meter struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Container is the core record of the system: one row per declared
// workload, independent of which platform adapter actually runs it.
type Container struct {
	ID                 string    `gorm:"type:text;primaryKey" json:"id"`
	Version            int       `gorm:"not null;default:1" json:"version"`
	Namespace          string    `gorm:"type:text;not null;index:idx_containers_ns_name" json:"namespace"`
	Name               string    `gorm:"type:text;not null;index:idx_containers_ns_name" json:"name"`
	FullName           string    `gorm:"type:text;uniqueIndex;not null" json:"full_name"`
	Owner              string    `gorm:"type:text;not null;index:idx_containers_owner" json:"owner"`
	OwnerRef           *string   `gorm:"type:text" json:"owner_ref,omitempty"`
	Image              string    `gorm:"type:text;not null" json:"image"`
	Env                JSONB     `gorm:"type:jsonb" json:"env,omitempty"`
	Volumes            JSONB     `gorm:"type:jsonb" json:"volumes,omitempty"`
	LocalVolumes       JSONB     `gorm:"type:jsonb" json:"local_volumes,omitempty"`
	Accelerators       JSONB     `gorm:"type:jsonb" json:"accelerators,omitempty"`
	CPURequest         *string   `gorm:"type:text" json:"cpu_request,omitempty"`
	MemoryRequest      *string   `gorm:"type:text" json:"memory_request,omitempty"`
	Status             JSONB     `gorm:"type:jsonb" json:"status,omitempty"`
	Platform           *string   `gorm:"type:text;index" json:"platform,omitempty"`
	Platforms          JSONB     `gorm:"type:jsonb" json:"platforms,omitempty"`
	ResourceName       *string   `gorm:"type:text" json:"resource_name,omitempty"`
	ResourceNamespace  *string   `gorm:"type:text" json:"resource_namespace,omitempty"`
	ResourceCostPerHr  *float64  `json:"resource_cost_per_hr,omitempty"`
	Command            *string   `gorm:"type:text" json:"command,omitempty"`
	Args               *string   `gorm:"type:text" json:"args,omitempty"`
	Labels             JSONB     `gorm:"type:jsonb" json:"labels,omitempty"`
	Meters             JSONB     `gorm:"type:jsonb" json:"meters,omitempty"`
	Queue              *string   `gorm:"type:text;index" json:"queue,omitempty"`
	Ports              JSONB     `gorm:"type:jsonb" json:"ports,omitempty"`
	ProxyPort          *int16    `json:"proxy_port,omitempty"`
	Timeout            *string   `gorm:"type:text" json:"timeout,omitempty"`
	Resources          JSONB     `gorm:"type:jsonb" json:"resources,omitempty"`
	HealthCheck        JSONB     `gorm:"type:jsonb" json:"health_check,omitempty"`
	Restart            string    `gorm:"type:text;not null;default:Always" json:"restart"`
	Authz              JSONB     `gorm:"type:jsonb" json:"authz,omitempty"`
	PublicAddr         *string   `gorm:"type:text" json:"public_addr,omitempty"`
	TailnetIP          *string   `gorm:"type:text" json:"tailnet_ip,omitempty"`
	CreatedBy          *string   `gorm:"type:text" json:"created_by,omitempty"`
	DesiredStatus      *string   `gorm:"type:text" json:"desired_status,omitempty"`
	ControllerData     JSONB     `gorm:"type:jsonb" json:"controller_data,omitempty"`
	ContainerUser      *string   `gorm:"type:text" json:"container_user,omitempty"`
	SSHKeys            JSONB     `gorm:"type:jsonb" json:"ssh_keys,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
	CreatedAt          time.Time `json:"created_at"`
}

func (Container) TableName() string { return "containers" }

// NewContainerID generates the id used as both primary key and the
// NEBU_CONTAINER_ID the workload sees.
func NewContainerID() string {
	return "nebu-" + uuid.NewString()
}

// ParseStatus unmarshals the status column, defaulting to an empty
// Defined-ish document if the column is unset (a brand-new record before
// its first write).
func (c *Container) ParseStatus() (ContainerStatusDoc, error) {
	var doc ContainerStatusDoc
	if c.Status.IsZero() {
		return doc, nil
	}
	err := c.Status.Unmarshal(&doc)
	return doc, err
}
