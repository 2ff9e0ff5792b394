package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
)

type ProcessorRepository struct{ db *gorm.DB }

func NewProcessorRepository(db *gorm.DB) *ProcessorRepository { return &ProcessorRepository{db: db} }

func (r *ProcessorRepository) Insert(ctx context.Context, p *models.Processor) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflictError("processor", "full_name already exists")
		}
		return err
	}
	return nil
}

func (r *ProcessorRepository) FindByNamespaceName(ctx context.Context, namespace, name string) (*models.Processor, error) {
	var p models.Processor
	err := r.db.WithContext(ctx).Where("namespace = ? AND name = ?", namespace, name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("processor", namespace+"/"+name)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProcessorRepository) FindByOwners(ctx context.Context, owners []string) ([]models.Processor, error) {
	var processors []models.Processor
	err := r.db.WithContext(ctx).Where("owner IN ?", owners).Find(&processors).Error
	return processors, err
}

func (r *ProcessorRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Processor{}, "id = ?", id).Error
}

type PlatformRepository struct{ db *gorm.DB }

func NewPlatformRepository(db *gorm.DB) *PlatformRepository { return &PlatformRepository{db: db} }

func (r *PlatformRepository) Insert(ctx context.Context, p *models.Platform) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflictError("platform", "name already exists")
		}
		return err
	}
	return nil
}

func (r *PlatformRepository) FindByName(ctx context.Context, name string) (*models.Platform, error) {
	var p models.Platform
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("platform", name)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlatformRepository) FindAll(ctx context.Context) ([]models.Platform, error) {
	var platforms []models.Platform
	err := r.db.WithContext(ctx).Find(&platforms).Error
	return platforms, err
}
