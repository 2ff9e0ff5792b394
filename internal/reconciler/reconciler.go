// Package reconciler drives the periodic tick loop that advances every
// active container's state machine: a ticker/stopCh/WaitGroup shutdown
// shape plus per-record retry-count-then-fail handling for any
// non-terminal container stuck across ticks.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
	"nebulous/internal/metrics"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/queue"
	"nebulous/internal/repository"
	"nebulous/internal/scheduler"
	"nebulous/internal/statemachine"
)

// Reconciler owns the tick loop. One process runs exactly one Reconciler;
// its status writes go through ContainerRepository.UpdateStatus, which
// reads, merges and writes a record inside one transaction.
type Reconciler struct {
	store     *repository.Store
	registry  *platform.Registry
	scheduler *scheduler.Scheduler
	queue     *queue.Client // optional; nil disables the wake-up fast path
	cfg       config.ReconcilerConfig
	log       *logrus.Entry
	metrics   *metrics.Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup
	ticker *time.Ticker

	retryMu sync.Mutex
	retries map[string]int
}

func New(store *repository.Store, registry *platform.Registry, sched *scheduler.Scheduler, q *queue.Client, cfg config.ReconcilerConfig, log *logrus.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		store:     store,
		registry:  registry,
		scheduler: sched,
		queue:     q,
		cfg:       cfg,
		log:       log.WithField("component", "reconciler"),
		metrics:   m,
		stopCh:    make(chan struct{}),
		retries:   make(map[string]int),
	}
}

// Start begins the tick loop in a background goroutine.
func (r *Reconciler) Start() {
	r.log.WithField("interval", r.cfg.Interval).Info("starting reconciler loop")
	r.ticker = time.NewTicker(r.cfg.Interval)

	r.wg.Add(1)
	go r.run()

	if r.queue != nil {
		r.wg.Add(1)
		go r.watchWakeups()
	}
}

// Stop signals the loop to exit and waits up to ShutdownGrace before
// forcing shutdown, matching Runner.Stop()'s 30s grace window exactly.
func (r *Reconciler) Stop() {
	r.log.Info("stopping reconciler loop")
	close(r.stopCh)
	if r.ticker != nil {
		r.ticker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("reconciler loop stopped gracefully")
	case <-time.After(r.cfg.ShutdownGrace):
		r.log.Warn("reconciler loop stop timeout, forcing shutdown")
	}
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	r.tick(context.Background())

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			r.tick(context.Background())
		}
	}
}

// watchWakeups lets an adapter or API handler short-circuit the next
// scheduled tick by publishing to the Redis wake channel — useful right
// after a container is declared, so it doesn't wait out a full interval.
func (r *Reconciler) watchWakeups() {
	defer r.wg.Done()

	wakeCh := r.queue.SubscribeWake(context.Background())

	for {
		select {
		case <-r.stopCh:
			return
		case _, open := <-wakeCh:
			if !open {
				return
			}
			r.tick(context.Background())
		}
	}
}

// tick pages through every active container and reconciles each, isolating
// panics and errors per record so one bad adapter call never stalls the
// rest of the page.
func (r *Reconciler) tick(ctx context.Context) {
	start := time.Now()
	offset := 0
	checked, failed := 0, 0

	for {
		records, err := r.store.Containers.FindActiveContainers(ctx, offset, r.cfg.PageSize)
		if err != nil {
			r.log.WithError(err).Error("failed to page active containers")
			return
		}
		if len(records) == 0 {
			break
		}

		for i := range records {
			checked++
			if !r.reconcileOne(ctx, &records[i]) {
				failed++
			}
		}

		if len(records) < r.cfg.PageSize {
			break
		}
		offset += r.cfg.PageSize
	}

	duration := time.Since(start)
	r.metrics.RecordReconcileTick(duration, checked, failed)

	r.log.WithFields(logrus.Fields{
		"checked":  checked,
		"failed":   failed,
		"duration": duration,
	}).Info("reconcile tick complete")
}

// reconcileOne dispatches a single record to its adapter (or the
// scheduler, for records that haven't been placed yet), recovering from
// panics and tracking consecutive failures toward cfg.MaxRetries.
func (r *Reconciler) reconcileOne(ctx context.Context, record *models.Container) (ok bool) {
	recordCtx, cancel := context.WithTimeout(ctx, r.cfg.PerRecordTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("container_id", record.ID).WithField("panic", rec).Error("reconcile panicked")
			r.registerFailure(recordCtx, record, fmt.Errorf("panic: %v", rec))
			ok = false
		}
	}()

	var err error
	platformName := derefOrEmpty(record.Platform)
	status, perr := record.ParseStatus()
	current := statemachine.ContainerStatus(status.Status)
	if perr != nil {
		err = apierrors.NewFatalError("reconciler.parse_status", perr)
	} else if status.Status == "" || current == statemachine.Defined || current == statemachine.Queued {
		err = r.scheduler.AdmitAndStart(recordCtx, record)
	} else {
		adapter, ok2 := r.registry.Get(platformName)
		if !ok2 {
			err = apierrors.NewFatalError("reconciler.dispatch", fmt.Errorf("no adapter registered for platform %q", platformName))
		} else {
			err = adapter.Reconcile(recordCtx, record)
			r.metrics.RecordAdapterCall(platformName, "reconcile", err)
		}
	}

	if err == nil {
		r.clearFailure(record.ID)
		return true
	}

	if _, ok2 := apierrors.IsFatalError(err); ok2 {
		r.markFailed(ctx, record, err)
		return false
	}

	r.registerFailure(recordCtx, record, err)
	return false
}

func (r *Reconciler) registerFailure(ctx context.Context, record *models.Container, cause error) {
	r.retryMu.Lock()
	r.retries[record.ID]++
	count := r.retries[record.ID]
	r.retryMu.Unlock()

	r.log.WithFields(logrus.Fields{
		"container_id": record.ID,
		"attempt":      count,
		"error":        cause,
	}).Warn("reconcile attempt failed")

	if count >= r.cfg.MaxRetries {
		r.markFailed(ctx, record, fmt.Errorf("exceeded %d reconcile retries: %w", r.cfg.MaxRetries, cause))
	}
}

func (r *Reconciler) clearFailure(containerID string) {
	r.retryMu.Lock()
	delete(r.retries, containerID)
	r.retryMu.Unlock()
}

func (r *Reconciler) markFailed(ctx context.Context, record *models.Container, cause error) {
	r.clearFailure(record.ID)
	if err := r.store.Containers.UpdateStatus(ctx, record.ID, models.ContainerStatusDoc{
		Status:  string(statemachine.Failed),
		Message: cause.Error(),
	}); err != nil {
		r.log.WithError(err).WithField("container_id", record.ID).Error("failed to persist Failed status")
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
