// Package store provides persistent storage for one lattice namespace
// using SQLite.
//
// # Architecture
//
// A namespace's tables are exclusively owned by a single SQLiteStore.
// The connection pool is capped at one connection, so mutations execute
// serially; paired with per-operation transactions this makes the
// relationship and referential-integrity invariants linearizable without
// explicit locking.
//
// # Data Models
//
//   - Thing: typed document node (url, type, JSON data, content, provenance)
//   - Relationship: one row per edge carrying both direction names
//     (predicate for from→to, reverse for to→from)
//   - Chunk: content fragment with a float32 embedding blob
//   - Event: immutable append-only mutation log entry
//   - Action: tracked unit of durable work with monotonic status
//   - Artifact: fingerprint-keyed derived output
//   - Mutation/Delivery: sync outbox rows and per-target outcomes
//
// # Outbox
//
// When sync is enabled (EnableSync), every mutating call writes one event
// and one outbox row inside the same transaction as the primary write.
// The sync manager consumes the outbox asynchronously, so delivery
// failures never roll back the write they describe.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Referential integrity for relationships is enforced in application
// transactions rather than foreign keys, keeping the layout portable to
// engines without cascading FK support.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrAlreadyExists: thing URL collision on create
//   - ErrInvalidReference: relating to a nonexistent thing
//   - ErrInvalidTransition / ErrActionFinalized: illegal action changes
//
// All methods accept context.Context for cancellation support. Callers
// abandoning a request never observe partial writes; each mutation
// commits or rolls back atomically.
//
// Use NewSQLiteStore(":memory:") for tests.
package store
