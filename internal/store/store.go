// ABOUTME: Store interface and data types for lattice persistence
// ABOUTME: Defines Thing, Relationship, Event, Action, Artifact and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a thing whose URL is taken
var ErrAlreadyExists = errors.New("already exists")

// ErrInvalidReference is returned when relating to a thing that does not exist
var ErrInvalidReference = errors.New("invalid reference")

// ErrInvalidTransition is returned on an illegal action status change
var ErrInvalidTransition = errors.New("invalid transition")

// ErrActionFinalized is returned when mutating an action in a terminal state
var ErrActionFinalized = errors.New("action already finalized")

// Thing represents a typed document node in the graph store
type Thing struct {
	URL       string
	Type      string
	Data      map[string]any
	Content   string
	Source    string // provenance: where this thing came from
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ThingPatch describes a partial update to a thing.
// Data entries are merged key-by-key into the existing data map.
// Content and Source replace the stored values when non-nil.
type ThingPatch struct {
	Data    map[string]any
	Content *string
	Source  *string
}

// ListThingsParams specifies filtering and pagination for ListThings.
type ListThingsParams struct {
	Type   string // Optional: only things of this type
	Prefix string // Optional: only things whose URL starts with this prefix
	Limit  int    // 1-500, defaults to 50
	Cursor string // Opaque cursor from a previous response
}

// ListThingsResult contains one page of things.
type ListThingsResult struct {
	Things     []*Thing
	NextCursor string // Empty if no more results
	HasMore    bool
}

// Relationship represents a typed edge between two things. A single row
// carries both direction names: Predicate for from→to queries and Reverse
// for to→from queries, so no mirror row ever has to be kept in sync.
type Relationship struct {
	From      string
	To        string
	Predicate string
	Reverse   string
	CreatedAt time.Time
}

// QueryOptions controls ordering and pagination for relationship queries.
type QueryOptions struct {
	Limit      int    // 1-500, defaults to 50
	Cursor     string // Opaque cursor from a previous response
	Descending bool   // Newest first instead of oldest first
}

// RelatedResult contains one page of things reached through relationships.
type RelatedResult struct {
	Things     []*Thing
	NextCursor string
	HasMore    bool
}

// Chunk is a fragment of a thing's content carrying a vector embedding.
type Chunk struct {
	ThingURL  string
	Index     int
	Text      string
	Embedding []float32
	Dims      int
}

// Event is an immutable entry in the append-only mutation log.
type Event struct {
	ID        string
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

// ListEventsParams specifies filtering and pagination for ListEvents.
type ListEventsParams struct {
	Type   string     // Optional: only events of this type
	Since  *time.Time // Optional: only events at or after this timestamp
	Until  *time.Time // Optional: only events at or before this timestamp
	Limit  int        // 1-500, defaults to 50
	Cursor string     // Opaque cursor from a previous response
}

// ListEventsResult contains one page of events.
type ListEventsResult struct {
	Events     []*Event
	NextCursor string
	HasMore    bool
}

// ActionStatus is the lifecycle state of a tracked action
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ActionStatus) Terminal() bool {
	return s == ActionCompleted || s == ActionFailed
}

// Action tracks a durable unit of work requested by a caller.
// Status transitions are monotonic: pending → running → completed|failed.
type Action struct {
	ID          string
	Actor       string
	Verb        string
	Target      string
	Status      ActionStatus
	Result      *string
	Error       *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Artifact is a cached derived output keyed by a content fingerprint.
type Artifact struct {
	Key       string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Mutation is an outbox record describing a committed write, queued for
// forwarding to sync targets. The ID is stable across delivery retries
// so targets can de-duplicate.
type Mutation struct {
	ID        string
	Op        string // e.g. "thing.created", "relationship.deleted"
	Payload   map[string]any
	CreatedAt time.Time
}

// DeliveryStatus is the per-target outcome state of a forwarded mutation
type DeliveryStatus string

const (
	DeliveryQueued     DeliveryStatus = "queued"
	DeliveryDelivering DeliveryStatus = "delivering"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryRetryable  DeliveryStatus = "failed_retryable"
	DeliveryPermanent  DeliveryStatus = "failed_permanent"
)

// Terminal reports whether the delivery needs no further attempts.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryPermanent
}

// Delivery records the outcome of forwarding one mutation to one target.
type Delivery struct {
	MutationID string
	Target     string
	Status     DeliveryStatus
	Attempts   int
	LastError  string
	UpdatedAt  time.Time
}

// Store defines the persistence operations for one namespace
type Store interface {
	// Things
	CreateThing(ctx context.Context, thing *Thing) error
	GetThing(ctx context.Context, url string) (*Thing, error)
	UpdateThing(ctx context.Context, url string, patch ThingPatch) (*Thing, error)
	DeleteThing(ctx context.Context, url string) (bool, error)
	ListThings(ctx context.Context, params ListThingsParams) (*ListThingsResult, error)

	// Relationships
	Relate(ctx context.Context, from, to, predicate, reverse string) (*Relationship, error)
	Related(ctx context.Context, url, predicate string, opts QueryOptions) (*RelatedResult, error)
	RelatedBy(ctx context.Context, url, reverse string, opts QueryOptions) (*RelatedResult, error)
	Unrelate(ctx context.Context, from, to, predicate string) (bool, error)

	// Chunks
	ReplaceChunks(ctx context.Context, thingURL string, chunks []*Chunk) error
	GetChunks(ctx context.Context, thingURL string) ([]*Chunk, error)
	ChunksForSearch(ctx context.Context, thingType string) ([]*Chunk, error)

	// Events
	RecordEvent(ctx context.Context, eventType string, payload map[string]any) (*Event, error)
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context, params ListEventsParams) (*ListEventsResult, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Actions
	CreateAction(ctx context.Context, actor, verb, target string) (*Action, error)
	GetAction(ctx context.Context, id string) (*Action, error)
	StartAction(ctx context.Context, id string) (*Action, error)
	CompleteAction(ctx context.Context, id, result string) (*Action, error)
	FailAction(ctx context.Context, id, actionErr string) (*Action, error)
	ListActions(ctx context.Context, status ActionStatus, limit int) ([]*Action, error)

	// Artifacts
	GetArtifact(ctx context.Context, key string) (*Artifact, error)
	SetArtifact(ctx context.Context, key, artifactType string, payload []byte) (*Artifact, error)
	InvalidateArtifact(ctx context.Context, key string) (bool, error)

	// Sync outbox
	ListOutbox(ctx context.Context, limit int) ([]*Mutation, error)
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, mutationID string) ([]*Delivery, error)
	RemoveDelivered(ctx context.Context, targets []string) (int64, error)

	Close() error
}
