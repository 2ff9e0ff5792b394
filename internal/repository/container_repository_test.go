package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
	"nebulous/internal/statemachine"
)

func newTestContainerRepo(t *testing.T) *ContainerRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Container{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewContainerRepository(db)
}

func newTestContainer(id, namespace, name, owner string) *models.Container {
	status := models.MustNewJSONB(models.ContainerStatusDoc{Status: string(statemachine.Defined)})
	return &models.Container{
		ID:        id,
		Namespace: namespace,
		Name:      name,
		FullName:  namespace + "/" + name,
		Owner:     owner,
		Image:     "busybox:latest",
		Status:    status,
	}
}

func TestContainerRepositoryInsertAndFind(t *testing.T) {
	repo := newTestContainerRepo(t)
	ctx := context.Background()

	c := newTestContainer("cont_1", "default", "trainer", "owner-a")
	if err := repo.Insert(ctx, c); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	byID, err := repo.FindByID(ctx, "cont_1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.Name != "trainer" {
		t.Fatalf("Name = %q, want trainer", byID.Name)
	}

	byName, err := repo.FindByNamespaceName(ctx, "default", "trainer")
	if err != nil {
		t.Fatalf("FindByNamespaceName: %v", err)
	}
	if byName.ID != "cont_1" {
		t.Fatalf("ID = %q, want cont_1", byName.ID)
	}
}

func TestContainerRepositoryInsertRejectsDuplicateFullName(t *testing.T) {
	repo := newTestContainerRepo(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, newTestContainer("cont_1", "default", "trainer", "owner-a")); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	err := repo.Insert(ctx, newTestContainer("cont_2", "default", "trainer", "owner-b"))
	if err == nil {
		t.Fatal("expected conflict on duplicate namespace/name")
	}
	if _, ok := apierrors.IsConflictError(err); !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestContainerRepositoryFindByIDNotFound(t *testing.T) {
	repo := newTestContainerRepo(t)
	_, err := repo.FindByID(context.Background(), "does-not-exist")
	if _, ok := apierrors.IsNotFoundError(err); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestContainerRepositoryFindByOwners(t *testing.T) {
	repo := newTestContainerRepo(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, newTestContainer("cont_a", "ns", "a", "owner-1")); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if err := repo.Insert(ctx, newTestContainer("cont_b", "ns", "b", "owner-2")); err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	found, err := repo.FindByOwners(ctx, []string{"owner-1"})
	if err != nil {
		t.Fatalf("FindByOwners: %v", err)
	}
	if len(found) != 1 || found[0].ID != "cont_a" {
		t.Fatalf("found = %+v, want exactly cont_a", found)
	}
}

func TestUpdateStatusNeverWalksBackFromTerminal(t *testing.T) {
	repo := newTestContainerRepo(t)
	ctx := context.Background()

	c := newTestContainer("cont_t", "ns", "t", "owner-1")
	if err := repo.Insert(ctx, c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, c.ID, models.ContainerStatusDoc{Status: string(statemachine.Failed), Message: "boom"}); err != nil {
		t.Fatalf("UpdateStatus to Failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, c.ID, models.ContainerStatusDoc{Status: string(statemachine.Running)}); err != nil {
		t.Fatalf("UpdateStatus attempting Running: %v", err)
	}

	got, err := repo.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	status, err := got.ParseStatus()
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if status.Status != string(statemachine.Failed) {
		t.Fatalf("status = %q, want it to remain failed", status.Status)
	}
}

func TestUpdateStatusMergesPartialFields(t *testing.T) {
	repo := newTestContainerRepo(t)
	ctx := context.Background()

	c := newTestContainer("cont_m", "ns", "m", "owner-1")
	if err := repo.Insert(ctx, c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, c.ID, models.ContainerStatusDoc{Status: string(statemachine.Creating), Accelerator: "A100"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.UpdateStatus(ctx, c.ID, models.ContainerStatusDoc{Status: string(statemachine.Running)}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := repo.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	status, err := got.ParseStatus()
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if status.Status != string(statemachine.Running) {
		t.Fatalf("status = %q, want running", status.Status)
	}
	if status.Accelerator != "A100" {
		t.Fatalf("accelerator = %q, want A100 to survive the merge", status.Accelerator)
	}
}
