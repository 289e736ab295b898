// Package store provides pluggable checkpoint persistence for the graph
// engine (spec.md 6: "Checkpoint store interface").
package store

import (
	"context"
	"errors"

	"github.com/TVScoundrel/agentforge-sub003/graph/emit"
)

// ErrNotFound is returned when a requested namespace/thread/checkpoint
// does not exist.
var ErrNotFound = errors.New("not found")

// Blob is an opaque, store-agnostic serialized checkpoint. The store need
// not interpret it (spec.md 6: "Blobs are opaque bytes; store need not
// interpret them").
type Blob []byte

// Store persists checkpoints keyed by (namespace, thread, checkpoint id),
// per spec.md 6's stable interface: put, latest, list. A checkpoint store
// is mandatory for any graph containing suspending nodes (spec.md 4.2).
type Store interface {
	// Put persists a checkpoint blob under (namespace, thread, id).
	Put(ctx context.Context, namespace, thread string, checkpointID int, blob Blob) error

	// Latest returns the highest-id checkpoint for (namespace, thread), or
	// ErrNotFound if none exists. Across executions with the same thread
	// id, resume reads this highest-id checkpoint (spec.md 5).
	Latest(ctx context.Context, namespace, thread string) (id int, blob Blob, err error)

	// List returns all checkpoint ids for (namespace, thread) in ascending
	// order (spec.md 8 law 2: checkpoint ids strictly increasing).
	List(ctx context.Context, namespace, thread string) ([]int, error)

	// SaveLabeled persists a named checkpoint for manual snapshot/restore,
	// layered on top of the mandatory namespace/id scheme (teacher's
	// SaveCheckpoint/LoadCheckpoint named-checkpoint API, kept as a
	// supplemented feature — see SPEC_FULL.md).
	SaveLabeled(ctx context.Context, label string, blob Blob) error

	// LoadLabeled retrieves a named checkpoint, or ErrNotFound.
	LoadLabeled(ctx context.Context, label string) (Blob, error)

	// CheckIdempotency reports whether key has already been committed.
	CheckIdempotency(ctx context.Context, key string) (bool, error)

	// MarkIdempotent records key as committed.
	MarkIdempotent(ctx context.Context, key string) error

	// PendingEvents returns up to limit not-yet-emitted events from the
	// transactional outbox (spec.md's implied exactly-once event delivery,
	// carried from the teacher's PendingEvents/MarkEventsEmitted pair).
	PendingEvents(ctx context.Context, limit int) ([]emit.Event, error)

	// MarkEventsEmitted marks events as delivered so PendingEvents will
	// not return them again.
	MarkEventsEmitted(ctx context.Context, eventIDs []string) error
}
