// Package scheduler picks which platform.Adapter a newly declared
// container runs on and enforces queue-slot exclusivity before handing it
// to the reconciler: an explicit platform wins outright, otherwise the
// first candidate in record.Platforms whose adapter reports Ready is
// chosen.
package scheduler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"nebulous/internal/apierrors"
	"nebulous/internal/metrics"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/repository"
	"nebulous/internal/statemachine"
)

// Scheduler resolves a container's adapter and clears it to start.
type Scheduler struct {
	registry *platform.Registry
	store    *repository.Store
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

func New(registry *platform.Registry, store *repository.Store, log *logrus.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		registry: registry,
		store:    store,
		log:      log.WithField("component", "scheduler"),
		metrics:  m,
	}
}

// SelectAdapter returns the adapter a container should run on: the one
// named by record.Platform if set, otherwise the first of record.Platforms
// (in order) whose adapter currently reports platform.Ready.
func (s *Scheduler) SelectAdapter(ctx context.Context, record *models.Container) (platform.Adapter, error) {
	if record.Platform != nil && *record.Platform != "" {
		adapter, ok := s.registry.Get(*record.Platform)
		if !ok {
			return nil, apierrors.NewUnschedulableError(fmt.Sprintf("unknown platform %q", *record.Platform))
		}
		return adapter, nil
	}

	var candidates []string
	_ = record.Platforms.Unmarshal(&candidates)
	if len(candidates) == 0 {
		candidates = s.registry.Names()
	}

	for _, name := range candidates {
		adapter, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		if adapter.Status(ctx) == platform.Ready {
			return adapter, nil
		}
	}
	return nil, apierrors.NewUnschedulableError("no candidate platform is currently Ready")
}

// AdmitAndStart resolves record's adapter, checks queue exclusivity when a
// queue is set, persists the chosen platform if it was inferred, and runs
// one reconcile step to move the container out of Defined/Queued. The
// queue check is best-effort: a rare double-admission is tolerated, not
// prevented.
func (s *Scheduler) AdmitAndStart(ctx context.Context, record *models.Container) error {
	if record.Queue != nil && *record.Queue != "" {
		free, err := s.store.Containers.IsQueueFree(ctx, *record.Queue, record.ID)
		if err != nil {
			return err
		}
		if !free {
			s.metrics.RecordSchedulerDecision("queued")
			s.log.WithFields(logrus.Fields{"container_id": record.ID, "queue": *record.Queue}).Info("queue occupied, deferring admission")
			return s.store.Containers.UpdateStatus(ctx, record.ID, models.ContainerStatusDoc{
				Status:  string(statemachine.Queued),
				Message: fmt.Sprintf("waiting for queue %q", *record.Queue),
			})
		}
	}

	adapter, err := s.SelectAdapter(ctx, record)
	if err != nil {
		s.metrics.RecordSchedulerDecision("unschedulable")
		s.log.WithError(err).WithField("container_id", record.ID).Warn("no adapter available for container")
		markErr := s.store.Containers.UpdateStatus(ctx, record.ID, models.ContainerStatusDoc{
			Status:  string(statemachine.Failed),
			Message: err.Error(),
		})
		if markErr != nil {
			return markErr
		}
		return err
	}

	if record.Platform == nil || *record.Platform != adapter.Name() {
		name := adapter.Name()
		if err := s.store.Containers.UpdateContainerFields(ctx, record.ID, map[string]interface{}{
			"platform": &name,
		}); err != nil {
			return err
		}
		record.Platform = &name
		s.log.WithFields(logrus.Fields{"container_id": record.ID, "platform": name}).Info("placed container")
	}

	s.metrics.RecordSchedulerDecision("placed")
	return adapter.Reconcile(ctx, record)
}
