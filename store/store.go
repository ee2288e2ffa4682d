// Package store defines the remote entity store the sync layer talks to and
// an in-memory implementation with a bounding-box filtered change feed.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/signalsfoundry/geovoxel/model"
)

var (
	// ErrNotFound indicates the entity id is unknown to the store.
	ErrNotFound = errors.New("entity not found")
	// ErrNotOwner indicates a delete by someone other than the owner.
	ErrNotOwner = errors.New("requester does not own entity")
	// ErrInvalidEntity indicates an entity failed validation.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrClosed indicates the store has been shut down.
	ErrClosed = errors.New("store closed")
)

// Store is the multi-client backing store for placed entities.
//
// Watch delivers changes inside box until ctx is cancelled, at which point
// the channel is closed. The store may also close the channel early, e.g.
// for a subscriber that falls behind; callers re-fetch and re-subscribe.
type Store interface {
	List(ctx context.Context, box model.BoundingBox) ([]model.PlacedEntity, error)
	Insert(ctx context.Context, e model.PlacedEntity) (string, error)
	Delete(ctx context.Context, id, requester string) error
	Watch(ctx context.Context, box model.BoundingBox) (<-chan model.Change, error)
}

// OwnerCounter reports how many entities each owner has placed.
type OwnerCounter interface {
	CountByOwner(ctx context.Context) (map[string]int, error)
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks the fields a client supplies on insert. The store assigns
// ID and CreatedAt.
func Validate(e model.PlacedEntity) error {
	switch {
	case math.IsNaN(e.Lat) || math.IsNaN(e.Lon) || math.IsNaN(e.Alt):
		return fmt.Errorf("%w: NaN coordinate", ErrInvalidEntity)
	case math.IsInf(e.Alt, 0):
		return fmt.Errorf("%w: infinite altitude", ErrInvalidEntity)
	case e.Lat < -90 || e.Lat > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidEntity, e.Lat)
	case e.Lon < -180 || e.Lon > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidEntity, e.Lon)
	case strings.TrimSpace(e.OwnerID) == "":
		return fmt.Errorf("%w: owner id is required", ErrInvalidEntity)
	case !colorPattern.MatchString(e.Color):
		return fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalidEntity, e.Color)
	}
	return nil
}

// InBox reports whether e falls inside box. The zero box matches
// everything.
func InBox(box model.BoundingBox, e model.PlacedEntity) bool {
	return box.IsZero() || box.Contains(e.Lat, e.Lon)
}
