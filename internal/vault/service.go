package vault

import (
	"context"
	"time"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
	"nebulous/internal/repository"
)

// SecretService bundles encryption with the secret repository so callers
// never see plaintext cross a storage boundary: Create/Update encrypt
// before insert, Reveal decrypts after fetch.
type SecretService struct {
	vault *Vault
	repo  *repository.SecretRepository
}

func NewSecretService(v *Vault, repo *repository.SecretRepository) *SecretService {
	return &SecretService{vault: v, repo: repo}
}

// Create encrypts value and inserts a new secret record.
func (s *SecretService) Create(ctx context.Context, namespace, name, owner, createdBy string, value []byte, labels map[string]string) (*models.Secret, error) {
	ciphertext, nonce, err := s.vault.Encrypt(value)
	if err != nil {
		return nil, err
	}
	labelsJSON, err := models.NewJSONB(labels)
	if err != nil {
		return nil, err
	}
	secret := &models.Secret{
		ID:             models.NewContainerID(), // secrets share the id scheme; prefix is cosmetic
		Namespace:      namespace,
		Name:           name,
		FullName:       namespace + "/" + name,
		Owner:          owner,
		CreatedBy:      &createdBy,
		EncryptedValue: ciphertext,
		Nonce:          nonce,
		Labels:         labelsJSON,
	}
	if err := s.repo.Insert(ctx, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// Update re-encrypts a new value for an existing secret, preserving its
// identity (id, namespace, name, owner), matching update_secret.
func (s *SecretService) Update(ctx context.Context, id string, value []byte) error {
	ciphertext, nonce, err := s.vault.Encrypt(value)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, id, ciphertext, nonce)
}

// Reveal fetches a secret and decrypts its value. Callers must already
// have authorized access to the secret's owner scope.
func (s *SecretService) Reveal(ctx context.Context, id string) (*models.Secret, []byte, error) {
	secret, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if secret.ExpiresAt != nil && secret.ExpiresAt.Before(time.Now().UTC()) {
		return nil, nil, apierrors.NewNotFoundError("secret", id)
	}
	plaintext, err := s.vault.Decrypt(secret.EncryptedValue, secret.Nonce)
	if err != nil {
		return nil, nil, err
	}
	return secret, plaintext, nil
}
