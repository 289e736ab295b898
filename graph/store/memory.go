package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/TVScoundrel/agentforge-sub003/graph/emit"
)

// MemStore is a thread-safe in-memory Store, suitable for tests and
// single-process runs. Data does not survive process restart.
type MemStore struct {
	mu             sync.RWMutex
	checkpoints    map[string]map[string]map[int]Blob // namespace -> thread -> id -> blob
	labeled        map[string]Blob
	idempotencyMap map[string]bool
	pendingEvents  []emit.Event
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		checkpoints:    make(map[string]map[string]map[int]Blob),
		labeled:        make(map[string]Blob),
		idempotencyMap: make(map[string]bool),
	}
}

// Put implements Store.
func (m *MemStore) Put(_ context.Context, namespace, thread string, checkpointID int, blob Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoints[namespace] == nil {
		m.checkpoints[namespace] = make(map[string]map[int]Blob)
	}
	if m.checkpoints[namespace][thread] == nil {
		m.checkpoints[namespace][thread] = make(map[int]Blob)
	}
	m.checkpoints[namespace][thread][checkpointID] = blob
	return nil
}

// Latest implements Store.
func (m *MemStore) Latest(_ context.Context, namespace, thread string) (int, Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byThread, ok := m.checkpoints[namespace]
	if !ok {
		return 0, nil, ErrNotFound
	}
	byID, ok := byThread[thread]
	if !ok || len(byID) == 0 {
		return 0, nil, ErrNotFound
	}
	maxID := -1
	for id := range byID {
		if id > maxID {
			maxID = id
		}
	}
	return maxID, byID[maxID], nil
}

// List implements Store.
func (m *MemStore) List(_ context.Context, namespace, thread string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byThread, ok := m.checkpoints[namespace]
	if !ok {
		return nil, nil
	}
	byID, ok := byThread[thread]
	if !ok {
		return nil, nil
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// SaveLabeled implements Store.
func (m *MemStore) SaveLabeled(_ context.Context, label string, blob Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labeled[label] = blob
	return nil
}

// LoadLabeled implements Store.
func (m *MemStore) LoadLabeled(_ context.Context, label string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.labeled[label]
	if !ok {
		return nil, ErrNotFound
	}
	return blob, nil
}

// CheckIdempotency implements Store.
func (m *MemStore) CheckIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotencyMap[key], nil
}

// MarkIdempotent implements Store.
func (m *MemStore) MarkIdempotent(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencyMap[key] {
		return fmt.Errorf("duplicate checkpoint: idempotency key %q already committed", key)
	}
	m.idempotencyMap[key] = true
	return nil
}

// PendingEvents implements Store.
func (m *MemStore) PendingEvents(_ context.Context, limit int) ([]emit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := len(m.pendingEvents)
	if limit > 0 && limit < count {
		count = limit
	}
	out := make([]emit.Event, count)
	copy(out, m.pendingEvents[:count])
	return out, nil
}

// Enqueue adds an event to the pending outbox (a MemStore-only helper, not
// part of the Store interface; the engine does not call it).
func (m *MemStore) Enqueue(event emit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingEvents = append(m.pendingEvents, event)
}

// MarkEventsEmitted implements Store.
func (m *MemStore) MarkEventsEmitted(_ context.Context, eventIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(eventIDs) == 0 {
		return nil
	}
	remove := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		remove[id] = true
	}
	filtered := m.pendingEvents[:0:0]
	for _, ev := range m.pendingEvents {
		id, _ := ev.Meta["event_id"].(string)
		if !remove[id] {
			filtered = append(filtered, ev)
		}
	}
	m.pendingEvents = filtered
	return nil
}
