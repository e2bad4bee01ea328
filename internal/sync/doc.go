// ABOUTME: Package documentation for the sync package
// ABOUTME: Describes the outbox consumer, delivery targets, and retry policy

// Package sync forwards committed mutations to external replica targets.
//
// # Architecture
//
// The store appends one outbox row per mutation inside the same
// transaction as the mutation itself, so the outbox is an exact,
// ordered record of everything that changed. The Manager consumes that
// outbox with one goroutine per configured target, which keeps a slow
// or failing target from stalling the others.
//
// # Delivery Semantics
//
// Delivery is at-least-once. The mutation id is assigned when the
// mutation commits and never changes across retries, so receivers can
// use it as a de-duplication key. DedupTarget applies the same key on
// the sending side to suppress duplicate posts within a TTL window.
//
// Each (mutation, target) pair tracks its own status:
//
//	queued -> delivering -> delivered
//	                     -> failed_retryable   (retried with backoff)
//	                     -> failed_permanent   (4xx class, never retried)
//
// Retryable failures back off exponentially with jitter up to the
// configured attempt ceiling; after that the row stays failed_retryable
// for inspection and is skipped by the consumer loops. An outbox row is
// removed only once every target has reached a terminal outcome.
//
// # Targets
//
// HTTPTarget posts the mutation envelope as JSON and classifies the
// response status: 2xx succeeds, 429 and 5xx are retryable, anything
// else is permanent. Deliveries can be signed with an HS256 JWT bound
// to the mutation id and target name.
package sync
