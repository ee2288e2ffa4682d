package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/model"
)

const geoEps = 1e-9

func TestToLocalForwardAxes(t *testing.T) {
	origin := model.GeoOrigin{Lat: 37.7749, Lng: -122.4194}

	north := ToLocal(origin, model.GeoPoint{Lat: origin.Lat + 10/MetersPerDegree, Lng: origin.Lng})
	if math.Abs(north.Z+10) > 1e-6 || math.Abs(north.X) > 1e-6 {
		t.Fatalf("10m north mapped to %+v, want z=-10", north)
	}

	east := ToLocal(origin, model.GeoPoint{Lat: origin.Lat, Lng: origin.Lng + 10/LonScale(origin)})
	if math.Abs(east.X-10) > 1e-6 || math.Abs(east.Z) > 1e-6 {
		t.Fatalf("10m east mapped to %+v, want x=10", east)
	}
}

func TestToLocalAltitudeBaseline(t *testing.T) {
	p := model.GeoPoint{Lat: 1, Lng: 1, Alt: 42}

	absolute := ToLocal(model.GeoOrigin{Lat: 1, Lng: 1}, p)
	if absolute.Y != 42 {
		t.Fatalf("y without baseline = %v, want 42", absolute.Y)
	}

	relative := ToLocal(model.GeoOrigin{Lat: 1, Lng: 1, AltBaseline: 40, HasAltBaseline: true}, p)
	if relative.Y != 2 {
		t.Fatalf("y with baseline = %v, want 2", relative.Y)
	}
}

func TestRoundTrip(t *testing.T) {
	origins := []model.GeoOrigin{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: -33.8688, Lng: 151.2093, AltBaseline: 12, HasAltBaseline: true},
		{Lat: 0, Lng: 0},
		{Lat: 64.1466, Lng: -21.9426},
	}
	offsets := []r3.Vec{
		{},
		{X: 150, Y: 3, Z: -200},
		{X: -300, Y: -1.5, Z: 300},
		{X: 0.05, Y: 0, Z: -0.05},
	}

	for _, origin := range origins {
		for _, off := range offsets {
			p := ToGeo(origin, off)
			back := ToLocal(origin, p)
			if !IsSameLocation(back, off, 1e-6) {
				t.Fatalf("origin %+v: local %+v -> %+v -> %+v", origin, off, p, back)
			}
			again := ToGeo(origin, back)
			if math.Abs(again.Lat-p.Lat) > geoEps || math.Abs(again.Lng-p.Lng) > geoEps || math.Abs(again.Alt-p.Alt) > 1e-9 {
				t.Fatalf("origin %+v: geo round trip %+v -> %+v", origin, p, again)
			}
		}
	}
}

func TestGeoDeltaMatchesRecentreShift(t *testing.T) {
	oldOrigin := model.GeoOrigin{Lat: 37.7749, Lng: -122.4194}
	newOrigin := model.GeoOrigin{Lat: 37.77495, Lng: -122.41930}
	delta := GeoDelta(oldOrigin, newOrigin)

	p := model.GeoPoint{Lat: 37.77501, Lng: -122.41955, Alt: 1}
	before := ToLocal(oldOrigin, p)
	after := ToLocal(newOrigin, p)

	if !IsSameLocation(r3.Sub(after, before), delta, 1e-4) {
		t.Fatalf("shift %+v, want %+v", r3.Sub(after, before), delta)
	}
}

func TestGroundDistance(t *testing.T) {
	a := model.GeoPoint{Lat: 10, Lng: 10}
	b := model.GeoPoint{Lat: 10 + 30/MetersPerDegree, Lng: 10}
	if d := GroundDistance(a, b); math.Abs(d-30) > 1e-6 {
		t.Fatalf("GroundDistance = %v, want 30", d)
	}
}
