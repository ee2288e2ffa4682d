package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/model"
)

// MetersPerDegree is the length of one degree of latitude used by the
// equirectangular approximation. It is also the east-west length of one
// degree of longitude at the equator.
const MetersPerDegree = 111111.0

// LonScale returns metres per degree of longitude at the origin's latitude.
func LonScale(origin model.GeoOrigin) float64 {
	return MetersPerDegree * math.Cos(origin.Lat*math.Pi/180.0)
}

// ToLocal converts a geographic point into local metres around origin.
//
// The local frame is right-handed with +Y up: +X points east and -Z points
// north. This is a small-area approximation and is only valid within a few
// hundred metres of the origin. Callers must not invoke it before an origin
// exists.
func ToLocal(origin model.GeoOrigin, p model.GeoPoint) r3.Vec {
	return r3.Vec{
		X: (p.Lng - origin.Lng) * LonScale(origin),
		Y: p.Alt - baseline(origin),
		Z: -(p.Lat - origin.Lat) * MetersPerDegree,
	}
}

// ToGeo is the inverse of ToLocal.
func ToGeo(origin model.GeoOrigin, v r3.Vec) model.GeoPoint {
	scale := LonScale(origin)
	lng := origin.Lng
	if scale != 0 {
		lng += v.X / scale
	}
	return model.GeoPoint{
		Lat: origin.Lat - v.Z/MetersPerDegree,
		Lng: lng,
		Alt: v.Y + baseline(origin),
	}
}

// EntityToLocal converts a placed entity into local metres around origin.
func EntityToLocal(origin model.GeoOrigin, e model.PlacedEntity) r3.Vec {
	return ToLocal(origin, e.Point())
}

// GeoDelta is the local offset at which the old origin appears when viewed
// from the new one. Every cached position shifts by exactly this amount
// when the session recentres from oldOrigin to newOrigin (for nearby points).
func GeoDelta(oldOrigin, newOrigin model.GeoOrigin) r3.Vec {
	return ToLocal(newOrigin, oldOrigin.Point())
}

// GroundDistance returns the horizontal distance in metres between two
// geographic points, using the same approximation as ToLocal around a.
func GroundDistance(a, b model.GeoPoint) float64 {
	v := ToLocal(model.GeoOrigin{Lat: a.Lat, Lng: a.Lng}, b)
	return math.Hypot(v.X, v.Z)
}

func baseline(origin model.GeoOrigin) float64 {
	if !origin.HasAltBaseline {
		return 0
	}
	return origin.AltBaseline
}
