package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
)

// SecretRepository stores ciphertext-only secret records, following the
// same GORM-repository shape as ContainerRepository.
type SecretRepository struct {
	db *gorm.DB
}

func NewSecretRepository(db *gorm.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

func (r *SecretRepository) Insert(ctx context.Context, s *models.Secret) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflictError("secret", "full_name already exists")
		}
		return err
	}
	return nil
}

// Update re-encrypts a secret's value while preserving its identity.
func (r *SecretRepository) Update(ctx context.Context, id string, encryptedValue, nonce []byte) error {
	result := r.db.WithContext(ctx).Model(&models.Secret{}).Where("id = ?", id).Updates(map[string]interface{}{
		"encrypted_value": encryptedValue,
		"nonce":           nonce,
		"updated_at":      time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apierrors.NewNotFoundError("secret", id)
	}
	return nil
}

func (r *SecretRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Secret{}, "id = ?", id).Error
}

func (r *SecretRepository) FindByID(ctx context.Context, id string) (*models.Secret, error) {
	var s models.Secret
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("secret", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SecretRepository) FindByNamespaceName(ctx context.Context, namespace, name string) (*models.Secret, error) {
	var s models.Secret
	err := r.db.WithContext(ctx).Where("namespace = ? AND name = ?", namespace, name).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("secret", namespace+"/"+name)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByOwners mirrors find_secrets_by_owners: gather every secret visible
// to a principal via direct ownership or organization membership.
func (r *SecretRepository) FindByOwners(ctx context.Context, owners []string) ([]models.Secret, error) {
	var secrets []models.Secret
	err := r.db.WithContext(ctx).Where("owner IN ?", owners).Order("created_at desc").Find(&secrets).Error
	return secrets, err
}
