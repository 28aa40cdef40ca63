// Package dbstore is the document persistence layer shared by every
// collection in this module (projects, files, modified_files,
// deployments, vllm_deployments, evaluation_tasks).
//
// The database itself is an external collaborator: this package never
// reproduces replica-set topology or a wire protocol, only the
// document-shaped storage contract callers need, persisting entities
// over jackc/pgx/v5 with JSONB payload columns rather than a rigid
// relational schema per entity.
package dbstore

import (
	"context"
	"time"
)

// Document is the shape every persisted entity must provide: a stable
// ID and an UpdatedAt used for optimistic write-if-changed semantics.
type Document interface {
	DocID() string
	DocUpdatedAt() time.Time
}

// NotFoundError is returned by Get/CompareAndSwap when no document
// with the given ID exists in the collection.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return e.Collection + " " + e.ID + " not found"
}

// ConflictError is returned by Create when a document with the given
// ID (or, for collections with a uniqueness predicate, a colliding
// natural key) already exists.
type ConflictError struct {
	Collection string
	ID         string
	Reason     string
}

func (e *ConflictError) Error() string {
	return e.Collection + " " + e.ID + " conflict: " + e.Reason
}

// StaleWriteError describes a document modified by another writer
// between read and write. Neither Collection implementation in this
// package returns it: CompareAndSwap serializes writers instead.
type StaleWriteError struct {
	Collection string
	ID         string
}

func (e *StaleWriteError) Error() string {
	return e.Collection + " " + e.ID + " was modified concurrently"
}

// Collection is a generic document collection keyed by string ID. It
// is deliberately small: every domain package (manifeststore,
// deploymenttracker, evalscheduler) wraps a Collection[T] with its own
// typed errors and query methods rather than exposing this interface
// directly to callers, keeping persistence interfaces small, typed
// and per-entity over a shared storage primitive.
type Collection[T Document] interface {
	// Get returns the document with the given ID, or a *NotFoundError.
	Get(ctx context.Context, id string) (T, error)

	// List returns every document in the collection matching filter.
	// A nil filter matches everything. Callers needing an index
	// (e.g. "by project_id") pass a filter closure rather than this
	// package growing a query language.
	List(ctx context.Context, filter func(T) bool) ([]T, error)

	// Create inserts doc, returning *ConflictError if DocID() already
	// exists.
	Create(ctx context.Context, doc T) error

	// CompareAndSwap reads the current stored document, applies mutate
	// to it, and persists the result, holding the document exclusively
	// for the whole read-mutate-write cycle so concurrent callers are
	// serialized. It does not compare against a copy the caller read
	// earlier: a conditional transition is expressed by mutate
	// inspecting current and returning an error (nothing is written).
	// The condition is checked against the stored document, so
	// at-most-once claims survive process restarts.
	CompareAndSwap(ctx context.Context, id string, mutate func(current T) (T, error)) (T, error)

	// Delete removes the document with the given ID. Deleting a
	// missing ID is not an error (idempotent).
	Delete(ctx context.Context, id string) error
}
