package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/geovoxel/model"
)

// Memory is an in-process Store. It backs tests and single-node demos.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]model.PlacedEntity
	hub      *Hub
	newID    func() string
	now      func() time.Time
}

// MemoryOption customises a Memory store.
type MemoryOption func(*Memory)

// WithIDGenerator overrides uuid id assignment.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(m *Memory) { m.newID = fn }
}

// WithClock overrides time.Now for CreatedAt.
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = fn }
}

// WithFeedBuffer sets the per-subscriber feed buffer.
func WithFeedBuffer(n int) MemoryOption {
	return func(m *Memory) { m.hub = NewHub(n) }
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entities: make(map[string]model.PlacedEntity),
		hub:      NewHub(DefaultFeedBuffer),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns entities inside box ordered by creation time.
func (m *Memory) List(ctx context.Context, box model.BoundingBox) ([]model.PlacedEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.PlacedEntity, 0, len(m.entities))
	for _, e := range m.entities {
		if InBox(box, e) {
			res = append(res, e)
		}
	}
	sortEntities(res)
	return res, nil
}

// Insert validates e, assigns an id and publishes a created event.
func (m *Memory) Insert(ctx context.Context, e model.PlacedEntity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := Validate(e); err != nil {
		return "", err
	}
	e.ID = m.newID()
	e.CreatedAt = m.now().UTC()

	m.mu.Lock()
	if _, exists := m.entities[e.ID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("insert: id %q already assigned", e.ID)
	}
	m.entities[e.ID] = e
	m.mu.Unlock()

	m.hub.Publish(model.Change{Type: model.ChangeCreated, Entity: e})
	return e.ID, nil
}

// Delete removes id when requester owns it.
func (m *Memory) Delete(ctx context.Context, id, requester string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	e, ok := m.entities[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	if e.OwnerID != requester {
		m.mu.Unlock()
		return fmt.Errorf("delete %q by %q: %w", id, requester, ErrNotOwner)
	}
	delete(m.entities, id)
	m.mu.Unlock()

	m.hub.Publish(model.Change{Type: model.ChangeDeleted, Entity: e})
	return nil
}

// Watch subscribes to changes inside box.
func (m *Memory) Watch(ctx context.Context, box model.BoundingBox) (<-chan model.Change, error) {
	return m.hub.Subscribe(ctx, box)
}

// CountByOwner returns the number of entities per owner.
func (m *Memory) CountByOwner(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range m.entities {
		counts[e.OwnerID]++
	}
	return counts, nil
}

// Len returns the number of stored entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// Subscribers returns the number of live feed subscribers.
func (m *Memory) Subscribers() int { return m.hub.Len() }

// Close ends every feed.
func (m *Memory) Close() error {
	m.hub.Close()
	return nil
}

func sortEntities(es []model.PlacedEntity) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
}
