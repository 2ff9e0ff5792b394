package scheduler

import (
	"context"
	"testing"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
	"nebulous/internal/platform"
)

// fakeAdapter is a minimal platform.Adapter stub for exercising
// SelectAdapter's candidate-walking logic without any real provider.
type fakeAdapter struct {
	name   string
	status platform.Status
}

func (f *fakeAdapter) Name() string                     { return f.name }
func (f *fakeAdapter) Status(ctx context.Context) platform.Status { return f.status }
func (f *fakeAdapter) Declare(ctx context.Context, spec platform.ContainerSpec, owner, apiKey string) (*models.Container, error) {
	return nil, nil
}
func (f *fakeAdapter) Reconcile(ctx context.Context, record *models.Container) error { return nil }
func (f *fakeAdapter) Logs(ctx context.Context, record *models.Container) (string, error) {
	return "", nil
}
func (f *fakeAdapter) Exec(ctx context.Context, record *models.Container, command string) (string, error) {
	return "", nil
}
func (f *fakeAdapter) Delete(ctx context.Context, record *models.Container) error { return nil }
func (f *fakeAdapter) AcceleratorMap() map[string]string                         { return nil }
func (f *fakeAdapter) CommonEnv(record *models.Container) map[string]string      { return nil }

func newTestScheduler(adapters ...*fakeAdapter) *Scheduler {
	registry := platform.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	return &Scheduler{registry: registry}
}

func TestSelectAdapterHonorsExplicitPlatform(t *testing.T) {
	s := newTestScheduler(
		&fakeAdapter{name: "runpod", status: platform.Ready},
		&fakeAdapter{name: "docker", status: platform.Unavailable},
	)
	platformName := "docker"
	record := &models.Container{Platform: &platformName}

	adapter, err := s.SelectAdapter(context.Background(), record)
	if err != nil {
		t.Fatalf("SelectAdapter: %v", err)
	}
	if adapter.Name() != "docker" {
		t.Fatalf("adapter = %s, want docker", adapter.Name())
	}
}

func TestSelectAdapterRejectsUnknownExplicitPlatform(t *testing.T) {
	s := newTestScheduler(&fakeAdapter{name: "runpod", status: platform.Ready})
	platformName := "nonexistent"
	record := &models.Container{Platform: &platformName}

	_, err := s.SelectAdapter(context.Background(), record)
	if _, ok := apierrors.IsUnschedulableError(err); !ok {
		t.Fatalf("expected UnschedulableError, got %v", err)
	}
}

func TestSelectAdapterPicksFirstReadyCandidate(t *testing.T) {
	s := newTestScheduler(
		&fakeAdapter{name: "runpod", status: platform.Unavailable},
		&fakeAdapter{name: "kubernetes", status: platform.Ready},
	)
	record := &models.Container{Platforms: models.MustNewJSONB([]string{"runpod", "kubernetes"})}

	adapter, err := s.SelectAdapter(context.Background(), record)
	if err != nil {
		t.Fatalf("SelectAdapter: %v", err)
	}
	if adapter.Name() != "kubernetes" {
		t.Fatalf("adapter = %s, want kubernetes", adapter.Name())
	}
}

func TestSelectAdapterReturnsUnschedulableWhenNoneReady(t *testing.T) {
	s := newTestScheduler(
		&fakeAdapter{name: "runpod", status: platform.Unavailable},
		&fakeAdapter{name: "docker", status: platform.DoNotSchedule},
	)
	record := &models.Container{}

	_, err := s.SelectAdapter(context.Background(), record)
	if _, ok := apierrors.IsUnschedulableError(err); !ok {
		t.Fatalf("expected UnschedulableError, got %v", err)
	}
}
