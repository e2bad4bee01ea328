// ABOUTME: Package documentation for the namespace package
// ABOUTME: Describes the isolation unit and the registry

// Package namespace ties the store, search engine, and sync manager
// together into the unit of isolation.
//
// # Architecture
//
// A Namespace owns exactly one SQLite database file. Mutating
// operations go through a mutex so relate, delete, and action
// transitions observe a linearizable order within the namespace; reads
// bypass the mutex and rely on SQLite WAL snapshots. Every successful
// document or relationship mutation appends one event and, when sync is
// configured, one outbox row inside the same transaction as the
// mutation itself.
//
// # Registry
//
// The Registry opens one Namespace per name under a root directory.
// Because namespaces never share a database file, operations in
// different namespaces run fully in parallel. The registry is a plain
// instance passed by handle rather than package-level state.
package namespace
