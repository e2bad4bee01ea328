// ABOUTME: Namespace-scoped runtime unit owning one store, search engine, and sync manager
// ABOUTME: Serializes mutations; every successful mutation lands one event and one outbox row

package namespace

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/2389/lattice/internal/search"
	"github.com/2389/lattice/internal/store"
	latsync "github.com/2389/lattice/internal/sync"
)

// Options configures a namespace at open time.
type Options struct {
	SearchConfig search.Config
	Embedder     search.Embedder

	// SyncTargets enables the outbox sync manager when non-empty.
	SyncTargets []latsync.Target
	Retry       latsync.RetryConfig
}

// Namespace is the unit of isolation: one store, one search engine, and
// optionally one sync manager, all scoped to a single database file.
// Mutating operations are serialized by a mutex; reads go straight to
// SQLite.
type Namespace struct {
	name    string
	store   *store.SQLiteStore
	search  *search.Engine
	syncer  *latsync.Manager
	targets []latsync.Target
	logger  *slog.Logger

	mu gosync.Mutex // serializes mutations
}

// Open creates or opens the namespace backed by the database at dbPath.
func Open(name, dbPath string, opts Options) (*Namespace, error) {
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening namespace %s: %w", name, err)
	}

	ns := &Namespace{
		name:   name,
		store:  s,
		search: search.NewEngine(s, opts.Embedder, opts.SearchConfig),
		logger: slog.Default().With("component", "namespace", "namespace", name),
	}

	if len(opts.SyncTargets) > 0 {
		s.EnableSync()
		ns.targets = opts.SyncTargets
		ns.syncer = latsync.NewManager(s, opts.SyncTargets, opts.Retry)
	}

	ns.logger.Info("namespace opened", "path", dbPath, "sync", ns.syncer != nil)
	return ns, nil
}

// Name returns the namespace name.
func (n *Namespace) Name() string { return n.name }

// Start launches the background sync loops, if sync is configured.
func (n *Namespace) Start(ctx context.Context) {
	if n.syncer != nil {
		n.syncer.Start(ctx)
	}
}

// Close stops the sync manager, releases any target-held resources
// (dedupe caches and the like), and closes the store.
func (n *Namespace) Close() error {
	if n.syncer != nil {
		n.syncer.Stop()
	}
	for _, target := range n.targets {
		if closer, ok := target.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	return n.store.Close()
}

// notifySync wakes the sync consumers after a committed mutation.
func (n *Namespace) notifySync() {
	if n.syncer != nil {
		n.syncer.Notify()
	}
}

// CreateThing stores a new typed document.
func (n *Namespace) CreateThing(ctx context.Context, thing *store.Thing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.store.CreateThing(ctx, thing); err != nil {
		return err
	}
	n.notifySync()
	return nil
}

// GetThing fetches one document by URL.
func (n *Namespace) GetThing(ctx context.Context, url string) (*store.Thing, error) {
	return n.store.GetThing(ctx, url)
}

// UpdateThing applies a partial update.
func (n *Namespace) UpdateThing(ctx context.Context, url string, patch store.ThingPatch) (*store.Thing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	thing, err := n.store.UpdateThing(ctx, url, patch)
	if err != nil {
		return nil, err
	}
	n.notifySync()
	return thing, nil
}

// DeleteThing removes a document and cascades its relationships and chunks.
func (n *Namespace) DeleteThing(ctx context.Context, url string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	deleted, err := n.store.DeleteThing(ctx, url)
	if err != nil {
		return false, err
	}
	if deleted {
		n.notifySync()
	}
	return deleted, nil
}

// ListThings pages through documents.
func (n *Namespace) ListThings(ctx context.Context, p store.ListThingsParams) (*store.ListThingsResult, error) {
	return n.store.ListThings(ctx, p)
}

// Relate creates or refreshes a bidirectional relationship.
func (n *Namespace) Relate(ctx context.Context, from, to, predicate, reverse string) (*store.Relationship, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rel, err := n.store.Relate(ctx, from, to, predicate, reverse)
	if err != nil {
		return nil, err
	}
	n.notifySync()
	return rel, nil
}

// Unrelate removes a relationship.
func (n *Namespace) Unrelate(ctx context.Context, from, to, predicate string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	removed, err := n.store.Unrelate(ctx, from, to, predicate)
	if err != nil {
		return false, err
	}
	if removed {
		n.notifySync()
	}
	return removed, nil
}

// Related pages through forward-related things.
func (n *Namespace) Related(ctx context.Context, url, predicate string, opts store.QueryOptions) (*store.RelatedResult, error) {
	return n.store.Related(ctx, url, predicate, opts)
}

// RelatedBy pages through reverse-related things.
func (n *Namespace) RelatedBy(ctx context.Context, url, reverse string, opts store.QueryOptions) (*store.RelatedResult, error) {
	return n.store.RelatedBy(ctx, url, reverse, opts)
}

// Index chunks and embeds a document's content for semantic search.
func (n *Namespace) Index(ctx context.Context, thingURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.search.Index(ctx, thingURL)
}

// Search runs a lexical, semantic, or hybrid query.
func (n *Namespace) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	return n.search.Search(ctx, q)
}

// RecordEvent appends an application-level event to the ledger.
func (n *Namespace) RecordEvent(ctx context.Context, eventType string, payload map[string]any) (*store.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.RecordEvent(ctx, eventType, payload)
}

// ListEvents pages through the event ledger.
func (n *Namespace) ListEvents(ctx context.Context, p store.ListEventsParams) (*store.ListEventsResult, error) {
	return n.store.ListEvents(ctx, p)
}

// PruneEvents bulk-expires events older than the given time.
func (n *Namespace) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.PruneEvents(ctx, before)
}

// CreateAction records a new pending action.
func (n *Namespace) CreateAction(ctx context.Context, actor, verb, target string) (*store.Action, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.CreateAction(ctx, actor, verb, target)
}

// GetAction fetches one action by id.
func (n *Namespace) GetAction(ctx context.Context, id string) (*store.Action, error) {
	return n.store.GetAction(ctx, id)
}

// StartAction transitions an action to running.
func (n *Namespace) StartAction(ctx context.Context, id string) (*store.Action, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.StartAction(ctx, id)
}

// CompleteAction transitions an action to completed with a result.
func (n *Namespace) CompleteAction(ctx context.Context, id, result string) (*store.Action, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.CompleteAction(ctx, id, result)
}

// FailAction transitions an action to failed with an error message.
func (n *Namespace) FailAction(ctx context.Context, id, actionErr string) (*store.Action, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.FailAction(ctx, id, actionErr)
}

// ListActions pages through actions, optionally filtered by status.
func (n *Namespace) ListActions(ctx context.Context, status store.ActionStatus, limit int) ([]*store.Action, error) {
	return n.store.ListActions(ctx, status, limit)
}

// GetArtifact fetches one cached artifact by key.
func (n *Namespace) GetArtifact(ctx context.Context, key string) (*store.Artifact, error) {
	return n.store.GetArtifact(ctx, key)
}

// SetArtifact stores a derived artifact under a fingerprint key.
func (n *Namespace) SetArtifact(ctx context.Context, key, artifactType string, payload []byte) (*store.Artifact, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.SetArtifact(ctx, key, artifactType, payload)
}

// InvalidateArtifact drops a cached artifact.
func (n *Namespace) InvalidateArtifact(ctx context.Context, key string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.InvalidateArtifact(ctx, key)
}

// SyncStatus reports the pending outbox and recorded per-target
// deliveries for inspection.
type SyncStatus struct {
	Pending    []*store.Mutation
	Deliveries map[string][]*store.Delivery // keyed by mutation id
}

// SyncStatus returns the current outbox backlog. Returns an empty status
// when sync is not configured.
func (n *Namespace) SyncStatus(ctx context.Context, limit int) (*SyncStatus, error) {
	status := &SyncStatus{Deliveries: make(map[string][]*store.Delivery)}
	if n.syncer == nil {
		return status, nil
	}

	pending, err := n.store.ListOutbox(ctx, limit)
	if err != nil {
		return nil, err
	}
	status.Pending = pending

	for _, m := range pending {
		deliveries, err := n.store.ListDeliveries(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		status.Deliveries[m.ID] = deliveries
	}
	return status, nil
}

// Flush synchronously forwards the pending outbox to every target.
// Returns the per-mutation results.
func (n *Namespace) Flush(ctx context.Context, limit int) ([]*latsync.SyncResult, error) {
	if n.syncer == nil {
		return nil, nil
	}

	pending, err := n.store.ListOutbox(ctx, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*latsync.SyncResult, 0, len(pending))
	for _, m := range pending {
		results = append(results, n.syncer.Forward(ctx, m))
	}

	if _, err := n.store.RemoveDelivered(ctx, n.syncer.TargetNames()); err != nil {
		return results, fmt.Errorf("removing delivered mutations: %w", err)
	}
	return results, nil
}
