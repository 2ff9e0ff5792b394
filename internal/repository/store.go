package repository

import "gorm.io/gorm"

// Store bundles every per-table repository behind one handle, the shape
// main.go wires up once and threads through the API handlers, the
// scheduler, and the reconciler.
type Store struct {
	Containers *ContainerRepository
	Secrets    *SecretRepository
	Namespaces *NamespaceRepository
	Volumes    *VolumeRepository
	Processors *ProcessorRepository
	Platforms  *PlatformRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		Containers: NewContainerRepository(db),
		Secrets:    NewSecretRepository(db),
		Namespaces: NewNamespaceRepository(db),
		Volumes:    NewVolumeRepository(db),
		Processors: NewProcessorRepository(db),
		Platforms:  NewPlatformRepository(db),
	}
}
