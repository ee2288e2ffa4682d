package core

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/model"
)

// BoundingBoxAround returns the lat/lng box covering radiusMeters around
// center, using the same approximation as ToLocal.
func BoundingBoxAround(center model.GeoPoint, radiusMeters float64) model.BoundingBox {
	dLat := radiusMeters / MetersPerDegree
	scale := LonScale(model.GeoOrigin{Lat: center.Lat, Lng: center.Lng})
	dLng := 180.0
	if scale > 0 {
		dLng = radiusMeters / scale
	}
	return model.BoundingBox{
		MinLat: center.Lat - dLat,
		MinLng: center.Lng - dLng,
		MaxLat: center.Lat + dLat,
		MaxLng: center.Lng + dLng,
	}
}

// ViewTracker decides when the subscription box needs to move. The box is
// re-centred only once the user has moved RefreshDistance metres from the
// point the current box was built around.
type ViewTracker struct {
	Radius          float64
	RefreshDistance float64

	center model.GeoPoint
	box    model.BoundingBox
	set    bool
}

// NewViewTracker constructs a tracker with the given radius and refresh
// distance (both metres).
func NewViewTracker(radius, refresh float64) *ViewTracker {
	return &ViewTracker{Radius: radius, RefreshDistance: refresh}
}

// Update reports the box for position p and whether it changed.
func (t *ViewTracker) Update(p model.GeoPoint) (model.BoundingBox, bool) {
	if t.set && GroundDistance(t.center, p) < t.RefreshDistance {
		return t.box, false
	}
	t.center = p
	t.box = BoundingBoxAround(p, t.Radius)
	t.set = true
	return t.box, true
}

// Box returns the current box and whether one has been computed.
func (t *ViewTracker) Box() (model.BoundingBox, bool) {
	return t.box, t.set
}

// Reset forgets the current box so the next Update rebuilds it.
func (t *ViewTracker) Reset() {
	t.set = false
	t.box = model.BoundingBox{}
}

// WithinDistance reports whether p lies within maxDistance of camera.
func WithinDistance(camera, p r3.Vec, maxDistance float64) bool {
	if maxDistance <= 0 {
		return true
	}
	return r3.Norm(r3.Sub(p, camera)) <= maxDistance
}
