// ABOUTME: Outbox-driven sync manager forwarding mutations to external targets
// ABOUTME: One consumer loop per target; per-target outcomes recorded independently

package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/2389/lattice/internal/store"
)

// TargetOutcome is the result of forwarding one mutation to one target.
type TargetOutcome struct {
	Target   string
	Status   store.DeliveryStatus
	Attempts int
	Error    string
}

// SyncResult carries the independent per-target outcomes for one
// mutation. Partial success across targets is normal and is never
// collapsed into a single boolean.
type SyncResult struct {
	MutationID string
	Outcomes   []TargetOutcome
}

// Manager consumes the store's sync outbox and forwards mutations to
// every configured target. Delivery is at-least-once: the mutation id is
// stable across retries so receivers can de-duplicate.
type Manager struct {
	store        store.Store
	targets      []Target
	retry        RetryConfig
	pollInterval time.Duration
	logger       *slog.Logger

	wake chan struct{}
	stop chan struct{}
	wg   gosync.WaitGroup
}

// NewManager creates a sync manager for the given targets.
func NewManager(s store.Store, targets []Target, retry RetryConfig) *Manager {
	return &Manager{
		store:        s,
		targets:      targets,
		retry:        retry.normalize(),
		pollInterval: 5 * time.Second,
		logger:       slog.Default().With("component", "sync"),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

// TargetNames returns the configured target names in order.
func (m *Manager) TargetNames() []string {
	names := make([]string, len(m.targets))
	for i, t := range m.targets {
		names[i] = t.Name()
	}
	return names
}

// Start launches one consumer goroutine per target plus a janitor that
// drops outbox rows once every target has a terminal outcome.
func (m *Manager) Start(ctx context.Context) {
	for _, target := range m.targets {
		m.wg.Add(1)
		go func(t Target) {
			defer m.wg.Done()
			m.targetLoop(ctx, t)
		}(target)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.janitorLoop(ctx)
	}()

	m.logger.Info("sync manager started", "targets", len(m.targets))
}

// Stop shuts down the consumer loops and waits for them to drain.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
	m.logger.Info("sync manager stopped")
}

// Notify wakes the consumer loops after a mutation commits. Non-blocking;
// a pending wake-up covers any number of notifications.
func (m *Manager) Notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// targetLoop drains the outbox for one target until stopped.
func (m *Manager) targetLoop(ctx context.Context, target Target) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		m.sweepTarget(ctx, target)

		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-m.wake:
		case <-ticker.C:
		}
	}
}

// sweepTarget attempts delivery of every queued mutation this target has
// not yet resolved. Mutations whose attempt budget is exhausted stay
// failed_retryable for sync-status inspection and are skipped.
func (m *Manager) sweepTarget(ctx context.Context, target Target) {
	mutations, err := m.store.ListOutbox(ctx, 500)
	if err != nil {
		m.logger.Error("listing outbox", "target", target.Name(), "error", err)
		return
	}

	for _, mutation := range mutations {
		prior := m.priorDelivery(ctx, mutation.ID, target.Name())
		if prior != nil && (prior.Status.Terminal() || prior.Attempts >= m.retry.MaxAttempts) {
			continue
		}

		startAttempts := 0
		if prior != nil {
			startAttempts = prior.Attempts
		}
		m.deliverWithRetry(ctx, target, mutation, startAttempts)

		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		default:
		}
	}
}

// priorDelivery fetches this target's recorded outcome for a mutation, if any.
func (m *Manager) priorDelivery(ctx context.Context, mutationID, target string) *store.Delivery {
	deliveries, err := m.store.ListDeliveries(ctx, mutationID)
	if err != nil {
		m.logger.Error("listing deliveries", "mutation_id", mutationID, "error", err)
		return nil
	}
	for _, d := range deliveries {
		if d.Target == target {
			return d
		}
	}
	return nil
}

// deliverWithRetry runs the retry loop for one mutation against one
// target, recording the outcome after every attempt. Returns the final
// recorded delivery.
func (m *Manager) deliverWithRetry(ctx context.Context, target Target, mutation *store.Mutation, attempts int) *store.Delivery {
	record := func(status store.DeliveryStatus, lastErr string) *store.Delivery {
		d := &store.Delivery{
			MutationID: mutation.ID,
			Target:     target.Name(),
			Status:     status,
			Attempts:   attempts,
			LastError:  lastErr,
		}
		if err := m.store.RecordDelivery(ctx, d); err != nil {
			m.logger.Error("recording delivery", "mutation_id", mutation.ID, "error", err)
		}
		return d
	}

	for attempts < m.retry.MaxAttempts {
		record(store.DeliveryDelivering, "")
		err := target.Deliver(ctx, mutation)
		attempts++

		if err == nil {
			m.logger.Debug("delivered mutation",
				"mutation_id", mutation.ID, "target", target.Name(), "attempts", attempts)
			return record(store.DeliveryDelivered, "")
		}

		var de *DeliveryError
		if errors.As(err, &de) && !de.Retryable {
			m.logger.Warn("permanent delivery failure",
				"mutation_id", mutation.ID, "target", target.Name(), "error", err)
			return record(store.DeliveryPermanent, err.Error())
		}

		last := record(store.DeliveryRetryable, err.Error())
		if attempts >= m.retry.MaxAttempts {
			m.logger.Warn("delivery attempts exhausted",
				"mutation_id", mutation.ID, "target", target.Name(), "attempts", attempts)
			return last
		}

		if sleepErr := sleep(ctx, m.retry.backoff(attempts-1)); sleepErr != nil {
			return last
		}
	}

	return record(store.DeliveryRetryable, "attempt budget exhausted")
}

// janitorLoop periodically removes outbox rows that every target has
// resolved, keeping the delivery history for inspection.
func (m *Manager) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			n, err := m.store.RemoveDelivered(ctx, m.TargetNames())
			if err != nil {
				m.logger.Error("removing delivered mutations", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("cleaned outbox", "removed", n)
			}
		}
	}
}

// Forward synchronously delivers one mutation to every target, returning
// the independent per-target outcomes. Used for explicit flushes; the
// background loops cover the normal path.
func (m *Manager) Forward(ctx context.Context, mutation *store.Mutation) *SyncResult {
	result := &SyncResult{MutationID: mutation.ID}

	for _, target := range m.targets {
		d := m.deliverWithRetry(ctx, target, mutation, 0)
		outcome := TargetOutcome{Target: target.Name()}
		if d != nil {
			outcome.Status = d.Status
			outcome.Attempts = d.Attempts
			outcome.Error = d.LastError
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}
