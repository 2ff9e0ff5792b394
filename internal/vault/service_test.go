package vault

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
	"nebulous/internal/repository"
)

func newTestSecretService(t *testing.T) (*SecretService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Secret{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v, err := New(key)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return NewSecretService(v, repository.NewSecretRepository(db)), db
}

func TestSecretServiceCreateAndReveal(t *testing.T) {
	svc, _ := newTestSecretService(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, "default", "api-key", "owner-1", "owner-1", []byte("top-secret-value"), map[string]string{"env": "prod"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if secret.EncryptedValue == nil {
		t.Fatal("expected encrypted value to be stored")
	}

	_, plaintext, err := svc.Reveal(ctx, secret.ID)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if string(plaintext) != "top-secret-value" {
		t.Fatalf("revealed value = %q, want %q", plaintext, "top-secret-value")
	}
}

func TestSecretServiceUpdateReEncrypts(t *testing.T) {
	svc, _ := newTestSecretService(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, "default", "api-key", "owner-1", "owner-1", []byte("v1"), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Update(ctx, secret.ID, []byte("v2")); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, plaintext, err := svc.Reveal(ctx, secret.ID)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if string(plaintext) != "v2" {
		t.Fatalf("revealed value = %q, want %q", plaintext, "v2")
	}
}

func TestSecretServiceRevealExpired(t *testing.T) {
	svc, db := newTestSecretService(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, "default", "stale", "owner-1", "owner-1", []byte("gone"), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.Secret{}).Where("id = ?", secret.ID).Update("expires_at", past).Error; err != nil {
		t.Fatalf("age secret: %v", err)
	}

	if _, _, err := svc.Reveal(ctx, secret.ID); err == nil {
		t.Fatal("expected expired secret to be unrevealable")
	} else if _, ok := apierrors.IsNotFoundError(err); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
