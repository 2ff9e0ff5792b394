package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
)

type VolumeRepository struct{ db *gorm.DB }

func NewVolumeRepository(db *gorm.DB) *VolumeRepository { return &VolumeRepository{db: db} }

func (r *VolumeRepository) Insert(ctx context.Context, v *models.Volume) error {
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflictError("volume", "full_name already exists")
		}
		return err
	}
	return nil
}

func (r *VolumeRepository) FindByNamespaceName(ctx context.Context, namespace, name string) (*models.Volume, error) {
	var v models.Volume
	err := r.db.WithContext(ctx).Where("namespace = ? AND name = ?", namespace, name).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("volume", namespace+"/"+name)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VolumeRepository) FindByOwners(ctx context.Context, owners []string) ([]models.Volume, error) {
	var volumes []models.Volume
	err := r.db.WithContext(ctx).Where("owner IN ?", owners).Find(&volumes).Error
	return volumes, err
}

func (r *VolumeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Volume{}, "id = ?", id).Error
}
