package models

import "time"

// Namespace groups containers, volumes, and secrets under one owner scope.
type Namespace struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;uniqueIndex;not null" json:"name"`
	Owner     string    `gorm:"type:text;not null;index" json:"owner"`
	Labels    JSONB     `gorm:"type:jsonb" json:"labels,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (Namespace) TableName() string { return "namespaces" }

// Volume is a named, persistent object-store-backed directory that
// containers can mount via VolumePath.Source.
type Volume struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Namespace   string    `gorm:"type:text;not null;index:idx_volumes_ns_name" json:"namespace"`
	Name        string    `gorm:"type:text;not null;index:idx_volumes_ns_name" json:"name"`
	FullName    string    `gorm:"type:text;uniqueIndex;not null" json:"full_name"`
	Owner       string    `gorm:"type:text;not null;index" json:"owner"`
	URI         string    `gorm:"type:text;not null" json:"uri"`
	SizeBytes   int64     `json:"size_bytes"`
	Labels      JSONB     `gorm:"type:jsonb" json:"labels,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Volume) TableName() string { return "volumes" }

// Processor tracks a long-lived worker pool fronted by a queue, sharing the
// container lifecycle machinery but scaling to N replicas instead of one.
type Processor struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Namespace   string    `gorm:"type:text;not null;index:idx_processors_ns_name" json:"namespace"`
	Name        string    `gorm:"type:text;not null;index:idx_processors_ns_name" json:"name"`
	FullName    string    `gorm:"type:text;uniqueIndex;not null" json:"full_name"`
	Owner       string    `gorm:"type:text;not null;index" json:"owner"`
	Platform    string    `gorm:"type:text;not null" json:"platform"`
	Replicas    int       `gorm:"not null;default:1" json:"replicas"`
	Status      JSONB     `gorm:"type:jsonb" json:"status,omitempty"`
	ContainerIDs JSONB    `gorm:"type:jsonb" json:"container_ids,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Processor) TableName() string { return "processors" }

// Platform records a registered adapter instance's reachability/credential
// configuration reference (the adapter code itself lives in
// internal/platform/*; this row is just bookkeeping for multi-tenant
// platform configuration, e.g. multiple Kubernetes clusters).
type Platform struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;uniqueIndex;not null" json:"name"`
	Kind      string    `gorm:"type:text;not null" json:"kind"`
	Owner     string    `gorm:"type:text;not null;index" json:"owner"`
	Config    JSONB     `gorm:"type:jsonb" json:"config,omitempty"`
	Status    string    `gorm:"type:text;not null;default:Ready" json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (Platform) TableName() string { return "platforms" }
