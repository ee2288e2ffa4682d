package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/core"
	"github.com/signalsfoundry/geovoxel/model"
)

var (
	// ErrDuplicateID indicates an entry with the same entity id exists.
	ErrDuplicateID = errors.New("entity id already indexed")
	// ErrDuplicateLocation indicates another entry already occupies the location.
	ErrDuplicateLocation = errors.New("location already occupied")
	// ErrNotFound indicates no entry has the requested id.
	ErrNotFound = errors.New("entity not indexed")
)

// Entry is one locally-known voxel. Local is only meaningful relative to the
// origin that was active when the entry was inserted.
type Entry struct {
	EntityID string
	Handle   Handle
	Local    r3.Vec
	Entity   model.PlacedEntity
	State    model.EntityState
	Visible  bool
}

// EventType indicates what changed in the index.
type EventType int

const (
	EventInserted EventType = iota
	EventRemoved
	EventRekeyed
	EventCleared
)

// Event is emitted to subscribers after a mutation.
type Event struct {
	Type  EventType
	Entry Entry
	// PrevID is the replaced id for EventRekeyed.
	PrevID string
	// Size is the number of entries after the mutation.
	Size int
}

// SpatialIndex maps entity ids to render handles and local positions. It
// enforces at most one entry per location within Epsilon.
//
// The session loop is the only writer; the lock lets UI and metrics readers
// take snapshots from other goroutines. Renderer methods are called with
// the lock held and must not call back into the index.
type SpatialIndex struct {
	mu sync.RWMutex

	epsilon  float64
	renderer Renderer
	entries  map[string]*Entry

	subs   map[int]func(Event)
	nextID int
}

// New constructs an empty index. A nil renderer discards render calls.
func New(renderer Renderer, epsilon float64) *SpatialIndex {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &SpatialIndex{
		epsilon:  epsilon,
		renderer: renderer,
		entries:  make(map[string]*Entry),
		subs:     make(map[int]func(Event)),
	}
}

// Epsilon returns the proximity threshold in metres.
func (ix *SpatialIndex) Epsilon() float64 { return ix.epsilon }

// Insert adds an entity at local, spawning its render handle.
func (ix *SpatialIndex) Insert(e model.PlacedEntity, local r3.Vec, state model.EntityState) (Entry, error) {
	ix.mu.Lock()
	if e.ID == "" {
		ix.mu.Unlock()
		return Entry{}, fmt.Errorf("insert: empty entity id")
	}
	if _, exists := ix.entries[e.ID]; exists {
		ix.mu.Unlock()
		return Entry{}, fmt.Errorf("insert %q: %w", e.ID, ErrDuplicateID)
	}
	if other, ok := ix.nearestLocked(local); ok {
		ix.mu.Unlock()
		return Entry{}, fmt.Errorf("insert %q near %q: %w", e.ID, other.EntityID, ErrDuplicateLocation)
	}
	entry := &Entry{
		EntityID: e.ID,
		Local:    local,
		Entity:   e,
		State:    state,
		Visible:  true,
	}
	entry.Handle = ix.renderer.Spawn(e, local)
	ix.entries[e.ID] = entry
	ev := Event{Type: EventInserted, Entry: *entry, Size: len(ix.entries)}
	subs := ix.subscribersLocked()
	ix.mu.Unlock()

	notify(subs, ev)
	return ev.Entry, nil
}

// Remove deletes the entry for id and destroys its render handle.
func (ix *SpatialIndex) Remove(id string) (Entry, bool) {
	ix.mu.Lock()
	entry, ok := ix.entries[id]
	if !ok {
		ix.mu.Unlock()
		return Entry{}, false
	}
	delete(ix.entries, id)
	ix.renderer.Destroy(entry.Handle)
	ev := Event{Type: EventRemoved, Entry: *entry, Size: len(ix.entries)}
	subs := ix.subscribersLocked()
	ix.mu.Unlock()

	notify(subs, ev)
	return ev.Entry, true
}

// Rekey moves the entry for oldID to newID, keeping its render handle, and
// marks it confirmed.
func (ix *SpatialIndex) Rekey(oldID, newID string) (Entry, error) {
	ix.mu.Lock()
	entry, ok := ix.entries[oldID]
	if !ok {
		ix.mu.Unlock()
		return Entry{}, fmt.Errorf("rekey %q: %w", oldID, ErrNotFound)
	}
	if oldID != newID {
		if _, exists := ix.entries[newID]; exists {
			ix.mu.Unlock()
			return Entry{}, fmt.Errorf("rekey %q to %q: %w", oldID, newID, ErrDuplicateID)
		}
		delete(ix.entries, oldID)
		ix.entries[newID] = entry
	}
	entry.EntityID = newID
	entry.Entity.ID = newID
	entry.State = model.EntityConfirmed
	ev := Event{Type: EventRekeyed, Entry: *entry, PrevID: oldID, Size: len(ix.entries)}
	subs := ix.subscribersLocked()
	ix.mu.Unlock()

	notify(subs, ev)
	return ev.Entry, nil
}

// Get returns the entry for id.
func (ix *SpatialIndex) Get(id string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entry, ok := ix.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// FindNear returns the closest entry within Epsilon of local.
func (ix *SpatialIndex) FindNear(local r3.Vec) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entry, ok := ix.nearestLocked(local)
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Len returns the number of entries.
func (ix *SpatialIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Entries returns a snapshot of all entries ordered by id.
func (ix *SpatialIndex) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	res := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		res = append(res, *e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EntityID < res[j].EntityID })
	return res
}

// Entities returns a snapshot of the indexed entities ordered by id.
func (ix *SpatialIndex) Entities() []model.PlacedEntity {
	entries := ix.Entries()
	res := make([]model.PlacedEntity, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.Entity)
	}
	return res
}

// VisibleCount returns how many entries are currently shown.
func (ix *SpatialIndex) VisibleCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, e := range ix.entries {
		if e.Visible {
			n++
		}
	}
	return n
}

// ApplyVisibility shows entries for which visible returns true and hides the
// rest. Hidden entries keep their handle so they can reappear cheaply. It
// returns the number of visible entries.
func (ix *SpatialIndex) ApplyVisibility(visible func(Entry) bool) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	shown := 0
	for _, e := range ix.entries {
		v := visible(*e)
		if v != e.Visible {
			e.Visible = v
			ix.renderer.SetVisible(e.Handle, v)
		}
		if v {
			shown++
		}
	}
	return shown
}

// Retain removes every entry for which keep returns false and returns the
// evicted entries.
func (ix *SpatialIndex) Retain(keep func(Entry) bool) []Entry {
	ix.mu.Lock()
	var evicted []Entry
	for id, e := range ix.entries {
		if keep(*e) {
			continue
		}
		delete(ix.entries, id)
		ix.renderer.Destroy(e.Handle)
		evicted = append(evicted, *e)
	}
	size := len(ix.entries)
	subs := ix.subscribersLocked()
	ix.mu.Unlock()

	for _, e := range evicted {
		notify(subs, Event{Type: EventRemoved, Entry: e, Size: size})
	}
	return evicted
}

// Clear destroys every render handle and empties the index.
func (ix *SpatialIndex) Clear() {
	ix.mu.Lock()
	for _, e := range ix.entries {
		ix.renderer.Destroy(e.Handle)
	}
	ix.entries = make(map[string]*Entry)
	subs := ix.subscribersLocked()
	ix.mu.Unlock()

	notify(subs, Event{Type: EventCleared})
}

// Subscribe registers a callback for index events. It returns an
// unsubscribe function.
func (ix *SpatialIndex) Subscribe(fn func(Event)) (unsubscribe func()) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	id := ix.nextID
	ix.nextID++
	ix.subs[id] = fn

	return func() {
		ix.mu.Lock()
		defer ix.mu.Unlock()
		delete(ix.subs, id)
	}
}

func (ix *SpatialIndex) nearestLocked(local r3.Vec) (*Entry, bool) {
	var (
		best     *Entry
		bestDist float64
	)
	for _, e := range ix.entries {
		if !core.IsSameLocation(e.Local, local, ix.epsilon) {
			continue
		}
		d := r3.Norm(r3.Sub(e.Local, local))
		if best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, best != nil
}

func (ix *SpatialIndex) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(ix.subs))
	for _, fn := range ix.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the lock so subscribers may read the index.
func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
