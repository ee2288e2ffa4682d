package session

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/core"
	"github.com/signalsfoundry/geovoxel/index"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/model"
	"github.com/signalsfoundry/geovoxel/store"
)

// ErrCreateFailed and ErrDeleteFailed wrap store errors that caused a
// rollback.
var (
	ErrCreateFailed = errors.New("placement was not saved")
	ErrDeleteFailed = errors.New("removal was not saved")
)

type pendingCreate struct {
	entity model.PlacedEntity
	// removeRequested is set when the user removed the voxel before the
	// store acknowledged it; the delete is issued once the id is known.
	removeRequested bool
}

// Synchronizer reconciles optimistic local edits and the store change feed
// into the spatial index. It is not safe for concurrent use; the engine
// loop owns it.
type Synchronizer struct {
	index   *index.SpatialIndex
	owner   string
	metrics Metrics
	log     logging.Logger

	origin    model.GeoOrigin
	hasOrigin bool
	box       model.BoundingBox

	nextTemp int
	pending  map[string]*pendingCreate
	// tombstones holds store ids deleted remotely while creates were
	// pending, so a late ack does not resurrect them.
	tombstones map[string]struct{}
	// deleting holds entities removed locally whose delete is in flight.
	deleting map[string]model.PlacedEntity
	// remoteDeleted marks in-flight deletes the feed already confirmed.
	remoteDeleted map[string]struct{}
}

// NewSynchronizer returns a synchronizer writing into ix on behalf of owner.
func NewSynchronizer(ix *index.SpatialIndex, owner string, metrics Metrics, log logging.Logger) *Synchronizer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Synchronizer{
		index:         ix,
		owner:         owner,
		metrics:       metrics,
		log:           log,
		pending:       make(map[string]*pendingCreate),
		tombstones:    make(map[string]struct{}),
		deleting:      make(map[string]model.PlacedEntity),
		remoteDeleted: make(map[string]struct{}),
	}
}

// SetOrigin sets the origin used for local positions without touching
// existing entries. Use Rebuild when replacing an origin.
func (s *Synchronizer) SetOrigin(origin model.GeoOrigin) {
	s.origin = origin
	s.hasOrigin = true
}

// SetBox sets the bounding box feed events are filtered by.
func (s *Synchronizer) SetBox(box model.BoundingBox) { s.box = box }

// Box returns the current bounding box.
func (s *Synchronizer) Box() model.BoundingBox { return s.box }

// PendingCount returns the number of creates awaiting the store.
func (s *Synchronizer) PendingCount() int { return len(s.pending) }

// Hydrate reconciles the index with a store snapshot of the current box.
// Confirmed entries inside the box that the snapshot no longer holds are
// removed first, then unknown snapshot entities are inserted. Pending
// creates and in-flight deletes are left alone.
func (s *Synchronizer) Hydrate(ctx context.Context, entities []model.PlacedEntity) (inserted, pruned int) {
	if !s.hasOrigin {
		return 0, 0
	}
	present := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		present[e.ID] = struct{}{}
	}
	gone := s.index.Retain(func(en index.Entry) bool {
		if en.State != model.EntityConfirmed || !store.InBox(s.box, en.Entity) {
			return true
		}
		if _, ok := s.pending[en.EntityID]; ok {
			return true
		}
		_, ok := present[en.EntityID]
		return ok
	})
	for _, en := range gone {
		s.log.Debug(ctx, "entity missing from store snapshot", logging.String("entity_id", en.EntityID))
	}
	pruned = len(gone)

	for _, e := range entities {
		if s.insertRemote(ctx, e) == FeedApplied {
			inserted++
		}
	}
	return inserted, pruned
}

// ApplyChange folds one change-feed event into the index and returns the
// outcome.
func (s *Synchronizer) ApplyChange(ctx context.Context, c model.Change) string {
	var outcome string
	switch c.Type {
	case model.ChangeCreated:
		outcome = s.insertRemote(ctx, c.Entity)
	case model.ChangeDeleted:
		outcome = s.applyRemoteDelete(c.Entity.ID)
	default:
		outcome = FeedIgnored
	}
	s.metrics.IncFeedEvent(outcome)
	return outcome
}

func (s *Synchronizer) insertRemote(ctx context.Context, e model.PlacedEntity) string {
	if !s.hasOrigin || e.ID == "" || !store.InBox(s.box, e) {
		return FeedIgnored
	}
	if _, ok := s.index.Get(e.ID); ok {
		return FeedDeduped
	}
	if _, ok := s.deleting[e.ID]; ok {
		return FeedIgnored
	}
	if _, ok := s.tombstones[e.ID]; ok {
		return FeedIgnored
	}
	local := core.EntityToLocal(s.origin, e)
	if _, ok := s.index.FindNear(local); ok {
		return FeedDeduped
	}
	if s.suppressedNear(local) {
		return FeedDeduped
	}
	if _, err := s.index.Insert(e, local, model.EntityConfirmed); err != nil {
		s.log.Warn(ctx, "remote entity not indexed", logging.String("entity_id", e.ID), logging.Err(err))
		return FeedIgnored
	}
	return FeedApplied
}

// suppressedNear reports whether local belongs to a pending create the user
// has already removed, whose echo must not reappear.
func (s *Synchronizer) suppressedNear(local r3.Vec) bool {
	for _, p := range s.pending {
		if p.removeRequested && core.IsSameLocation(core.EntityToLocal(s.origin, p.entity), local, s.index.Epsilon()) {
			return true
		}
	}
	return false
}

func (s *Synchronizer) applyRemoteDelete(id string) string {
	if id == "" {
		return FeedIgnored
	}
	if _, ok := s.index.Remove(id); ok {
		return FeedApplied
	}
	if _, ok := s.deleting[id]; ok {
		s.remoteDeleted[id] = struct{}{}
		return FeedDeduped
	}
	if len(s.pending) > 0 {
		s.tombstones[id] = struct{}{}
	}
	return FeedIgnored
}

// BeginCreate inserts a pending entity at the snapped local target and
// returns the store operation to issue.
func (s *Synchronizer) BeginCreate(target r3.Vec, color string) (Op, error) {
	if !s.hasOrigin {
		return Op{}, core.ErrNotReady
	}
	geo := core.ToGeo(s.origin, target)
	s.nextTemp++
	e := model.PlacedEntity{
		ID:      fmt.Sprintf("temp-%d", s.nextTemp),
		Lat:     geo.Lat,
		Lon:     geo.Lng,
		Alt:     geo.Alt,
		Color:   color,
		OwnerID: s.owner,
	}
	if _, err := s.index.Insert(e, target, model.EntityPending); err != nil {
		return Op{}, err
	}
	s.pending[e.ID] = &pendingCreate{entity: e}
	return Op{Kind: OpCreate, TempID: e.ID, Entity: e}, nil
}

// BeginRemove removes the entry for id from the index. It returns the
// delete to issue, or false when the entry is a pending create whose delete
// must wait for the store id.
func (s *Synchronizer) BeginRemove(id string) (Op, bool, error) {
	entry, ok := s.index.Remove(id)
	if !ok {
		return Op{}, false, fmt.Errorf("remove %q: %w", id, index.ErrNotFound)
	}
	if p, ok := s.pending[id]; ok {
		p.removeRequested = true
		return Op{}, false, nil
	}
	s.deleting[id] = entry.Entity
	return Op{Kind: OpDelete, ID: id, Entity: entry.Entity}, true, nil
}

// CompleteCreate applies a create acknowledgement. When the user removed
// the entity while it was pending, it returns the now-issuable delete.
func (s *Synchronizer) CompleteCreate(ctx context.Context, res OpResult) (Op, bool, error) {
	tempID := res.Op.TempID
	p, ok := s.pending[tempID]
	if !ok {
		return Op{}, false, nil
	}
	delete(s.pending, tempID)
	defer s.compactTombstones()

	if res.Err != nil {
		if p.removeRequested {
			// Already gone locally, which is what the user asked for.
			return Op{}, false, nil
		}
		s.index.Remove(tempID)
		s.metrics.IncRollback(OpCreate.String())
		return Op{}, false, fmt.Errorf("%w: %w", ErrCreateFailed, res.Err)
	}
	s.metrics.IncPlacement()

	id := res.ID
	if _, gone := s.tombstones[id]; gone {
		delete(s.tombstones, id)
		s.index.Remove(tempID)
		s.log.Debug(ctx, "created entity already deleted remotely", logging.String("entity_id", id))
		return Op{}, false, nil
	}

	confirmed := p.entity
	confirmed.ID = id
	if p.removeRequested {
		s.index.Remove(id)
		s.deleting[id] = confirmed
		return Op{Kind: OpDelete, ID: id, Entity: confirmed}, true, nil
	}

	if _, err := s.index.Rekey(tempID, id); err != nil {
		// The echo was indexed under the store id first.
		s.index.Remove(tempID)
		if _, ok := s.index.Get(id); !ok {
			return Op{}, false, err
		}
	}
	if !store.InBox(s.box, confirmed) {
		// The view moved on while the create was in flight.
		s.index.Remove(id)
	}
	return Op{}, false, nil
}

// CompleteDelete applies a delete acknowledgement, restoring the entity on
// failure unless the feed already reported it gone or it now lies outside
// the box.
func (s *Synchronizer) CompleteDelete(ctx context.Context, res OpResult) error {
	id := res.Op.ID
	snapshot, ok := s.deleting[id]
	if !ok {
		return nil
	}
	delete(s.deleting, id)
	_, seen := s.remoteDeleted[id]
	delete(s.remoteDeleted, id)

	if res.Err == nil || errors.Is(res.Err, store.ErrNotFound) || seen {
		if res.Err == nil {
			s.metrics.IncRemoval()
		}
		return nil
	}

	s.metrics.IncRollback(OpDelete.String())
	if s.hasOrigin && store.InBox(s.box, snapshot) {
		local := core.EntityToLocal(s.origin, snapshot)
		if _, err := s.index.Insert(snapshot, local, model.EntityConfirmed); err != nil {
			s.log.Warn(ctx, "could not restore entity after failed delete",
				logging.String("entity_id", id), logging.Err(err))
		}
	}
	return fmt.Errorf("%w: %w", ErrDeleteFailed, res.Err)
}

// Rebuild replaces the origin and re-creates every entry at its position
// relative to the new origin. Pending entries keep their temp ids.
func (s *Synchronizer) Rebuild(ctx context.Context, origin model.GeoOrigin) {
	entries := s.index.Entries()
	s.index.Clear()
	s.SetOrigin(origin)
	for _, en := range entries {
		local := core.EntityToLocal(origin, en.Entity)
		if _, err := s.index.Insert(en.Entity, local, en.State); err != nil {
			s.log.Warn(ctx, "entity dropped during rebuild",
				logging.String("entity_id", en.EntityID), logging.Err(err))
		}
	}
}

// EvictOutside removes confirmed entries outside the current box. Pending
// entries stay until acknowledged.
func (s *Synchronizer) EvictOutside() []index.Entry {
	if s.box.IsZero() {
		return nil
	}
	return s.index.Retain(func(en index.Entry) bool {
		return en.State == model.EntityPending || store.InBox(s.box, en.Entity)
	})
}

// Reset forgets all sync state and clears the index.
func (s *Synchronizer) Reset() {
	s.index.Clear()
	s.hasOrigin = false
	s.origin = model.GeoOrigin{}
	s.box = model.BoundingBox{}
	s.pending = make(map[string]*pendingCreate)
	s.tombstones = make(map[string]struct{})
	s.deleting = make(map[string]model.PlacedEntity)
	s.remoteDeleted = make(map[string]struct{})
}

func (s *Synchronizer) compactTombstones() {
	if len(s.pending) == 0 && len(s.tombstones) > 0 {
		s.tombstones = make(map[string]struct{})
	}
}
