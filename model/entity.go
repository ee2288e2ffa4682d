package model

import "time"

// PlacedEntity is a persisted voxel. ID is assigned by the backing store and
// is immutable once assigned.
type PlacedEntity struct {
	ID      string
	Lat     float64
	Lon     float64
	Alt     float64
	Color   string // "#rrggbb"
	OwnerID string

	CreatedAt time.Time
}

// Point returns the entity's geographic position.
func (e PlacedEntity) Point() GeoPoint {
	return GeoPoint{Lat: e.Lat, Lng: e.Lon, Alt: e.Alt}
}

// EntityState tracks where a locally-known entity is in its lifecycle.
type EntityState int

const (
	// EntityPending is an optimistic local insert still waiting on the store.
	EntityPending EntityState = iota
	// EntityConfirmed carries a store-assigned id.
	EntityConfirmed
)

func (s EntityState) String() string {
	switch s {
	case EntityPending:
		return "pending"
	case EntityConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// ChangeType identifies a change-feed event.
type ChangeType int

const (
	ChangeCreated ChangeType = iota + 1
	ChangeDeleted
)

func (t ChangeType) String() string {
	switch t {
	case ChangeCreated:
		return "created"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one change-feed event. Deleted events carry at least Entity.ID;
// stores that still know the row also fill in its position.
type Change struct {
	Type   ChangeType
	Entity PlacedEntity
}
