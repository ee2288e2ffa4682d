package model

// GeoPoint is a WGS84 position. Alt is metres and may be zero when the
// sensor does not report altitude.
type GeoPoint struct {
	Lat float64
	Lng float64
	Alt float64
}

// GeoOrigin is the geographic point mapped to local (0,0,0) for a session.
//
// When HasAltBaseline is set, local heights are expressed relative to
// AltBaseline ("height above where I started") rather than as absolute
// altitude.
type GeoOrigin struct {
	Lat float64
	Lng float64

	AltBaseline    float64
	HasAltBaseline bool
}

// Point returns the origin as a GeoPoint at its baseline altitude.
func (o GeoOrigin) Point() GeoPoint {
	return GeoPoint{Lat: o.Lat, Lng: o.Lng, Alt: o.AltBaseline}
}

// BoundingBox is an axis-aligned lat/lng rectangle.
type BoundingBox struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// Contains reports whether (lat, lng) lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// IsZero reports whether the box was never set.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}
