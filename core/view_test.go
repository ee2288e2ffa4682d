package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/model"
)

func TestBoundingBoxAround(t *testing.T) {
	center := model.GeoPoint{Lat: 37.7749, Lng: -122.4194}
	box := BoundingBoxAround(center, 200)

	if !box.Contains(center.Lat, center.Lng) {
		t.Fatalf("box %+v does not contain its centre", box)
	}
	origin := model.GeoOrigin{Lat: center.Lat, Lng: center.Lng}
	corner := ToLocal(origin, model.GeoPoint{Lat: box.MaxLat, Lng: box.MaxLng})
	if math.Abs(corner.X-200) > 1e-6 || math.Abs(corner.Z+200) > 1e-6 {
		t.Fatalf("north-east corner at %+v, want (200, _, -200)", corner)
	}

	outside := ToGeo(origin, r3.Vec{X: 250})
	if box.Contains(outside.Lat, outside.Lng) {
		t.Fatalf("point 250m east should be outside a 200m box")
	}
}

func TestViewTrackerRefresh(t *testing.T) {
	v := NewViewTracker(200, 50)
	start := model.GeoPoint{Lat: 10, Lng: 10}

	first, changed := v.Update(start)
	if !changed {
		t.Fatalf("first update should build a box")
	}

	near := ToGeo(model.GeoOrigin{Lat: 10, Lng: 10}, r3.Vec{X: 20})
	if box, changed := v.Update(near); changed || box != first {
		t.Fatalf("20m move rebuilt the box")
	}

	far := ToGeo(model.GeoOrigin{Lat: 10, Lng: 10}, r3.Vec{Z: -60})
	box, changed := v.Update(far)
	if !changed || box == first {
		t.Fatalf("60m move should rebuild the box")
	}

	v.Reset()
	if _, ok := v.Box(); ok {
		t.Fatalf("Box() ok after Reset")
	}
}

func TestWithinDistance(t *testing.T) {
	cam := r3.Vec{}
	if !WithinDistance(cam, r3.Vec{X: 3, Z: 4}, 5) {
		t.Fatalf("5m point should be within 5m")
	}
	if WithinDistance(cam, r3.Vec{X: 3, Z: 4.1}, 5) {
		t.Fatalf("point beyond 5m reported within")
	}
	if !WithinDistance(cam, r3.Vec{X: 1e6}, 0) {
		t.Fatalf("zero max distance should disable culling")
	}
}
