package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
)

// NamespaceRepository, VolumeRepository, ProcessorRepository, and
// PlatformRepository follow the same shape as ContainerRepository; they
// are smaller because the core doesn't reconcile them the way it
// reconciles containers.

type NamespaceRepository struct{ db *gorm.DB }

func NewNamespaceRepository(db *gorm.DB) *NamespaceRepository { return &NamespaceRepository{db: db} }

func (r *NamespaceRepository) Insert(ctx context.Context, n *models.Namespace) error {
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflictError("namespace", "name already exists")
		}
		return err
	}
	return nil
}

func (r *NamespaceRepository) FindByName(ctx context.Context, name string) (*models.Namespace, error) {
	var n models.Namespace
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("namespace", name)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NamespaceRepository) FindByOwners(ctx context.Context, owners []string) ([]models.Namespace, error) {
	var namespaces []models.Namespace
	err := r.db.WithContext(ctx).Where("owner IN ?", owners).Find(&namespaces).Error
	return namespaces, err
}

func (r *NamespaceRepository) Delete(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Delete(&models.Namespace{}, "name = ?", name).Error
}
