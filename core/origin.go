package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/geovoxel/model"
)

var (
	// ErrNotReady indicates an operation needs a geographic origin that does
	// not exist yet. It is a guard, not a failure: callers treat it as a no-op.
	ErrNotReady = errors.New("geographic origin not established")
	// ErrNoFix indicates no valid position fix has been observed.
	ErrNoFix = errors.New("no position fix available")
	// ErrInvalidFix indicates a sensor sample was rejected.
	ErrInvalidFix = errors.New("invalid position fix")
)

// Fix is one geolocation sample.
type Fix struct {
	Lat      float64
	Lng      float64
	Alt      float64
	HasAlt   bool
	Accuracy float64 // metres, 0 when unknown
	Time     time.Time
}

// Point returns the fix as a GeoPoint.
func (f Fix) Point() model.GeoPoint {
	return model.GeoPoint{Lat: f.Lat, Lng: f.Lng, Alt: f.Alt}
}

// OriginManager holds the session's GeoOrigin. The first valid fix sets it;
// afterwards it only changes through Recenter.
type OriginManager struct {
	// MaxAccuracy rejects fixes whose reported accuracy is worse than this
	// many metres. Zero accepts any accuracy.
	MaxAccuracy float64
	// MaxAge rejects fixes older than this. Zero accepts any age.
	MaxAge time.Duration

	now func() time.Time

	origin model.GeoOrigin
	ready  bool

	last    Fix
	hasLast bool
}

// NewOriginManager constructs a manager with no origin.
func NewOriginManager(maxAccuracy float64, maxAge time.Duration) *OriginManager {
	return &OriginManager{
		MaxAccuracy: maxAccuracy,
		MaxAge:      maxAge,
		now:         time.Now,
	}
}

// Validate checks a fix without recording it.
func (m *OriginManager) Validate(f Fix) error {
	switch {
	case math.IsNaN(f.Lat) || math.IsNaN(f.Lng) || math.IsInf(f.Lat, 0) || math.IsInf(f.Lng, 0):
		return fmt.Errorf("%w: non-finite coordinates", ErrInvalidFix)
	case f.Lat < -90 || f.Lat > 90:
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidFix, f.Lat)
	case f.Lng < -180 || f.Lng > 180:
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidFix, f.Lng)
	case f.HasAlt && (math.IsNaN(f.Alt) || math.IsInf(f.Alt, 0)):
		return fmt.Errorf("%w: non-finite altitude", ErrInvalidFix)
	case m.MaxAccuracy > 0 && f.Accuracy > m.MaxAccuracy:
		return fmt.Errorf("%w: accuracy %.1fm worse than %.1fm", ErrInvalidFix, f.Accuracy, m.MaxAccuracy)
	}
	if m.MaxAge > 0 && !f.Time.IsZero() {
		if age := m.now().Sub(f.Time); age > m.MaxAge {
			return fmt.Errorf("%w: fix is %s old", ErrInvalidFix, age.Round(time.Millisecond))
		}
	}
	return nil
}

// Observe records a fix. It reports true when this fix established the
// session origin.
func (m *OriginManager) Observe(f Fix) (bool, error) {
	if err := m.Validate(f); err != nil {
		return false, err
	}
	if !f.HasAlt {
		f.Alt = 0
	}
	m.last = f
	m.hasLast = true
	if m.ready {
		return false, nil
	}
	m.origin = originFromFix(f)
	m.ready = true
	return true, nil
}

// Origin returns the current origin and whether one exists.
func (m *OriginManager) Origin() (model.GeoOrigin, bool) {
	return m.origin, m.ready
}

// Ready reports whether an origin exists.
func (m *OriginManager) Ready() bool { return m.ready }

// LastFix returns the most recent valid fix.
func (m *OriginManager) LastFix() (Fix, bool) {
	return m.last, m.hasLast
}

// Recenter replaces the origin with the latest fix. Every local position
// computed against the previous origin is stale afterwards; the caller must
// rebuild them.
func (m *OriginManager) Recenter() (prev, next model.GeoOrigin, err error) {
	if !m.hasLast {
		return model.GeoOrigin{}, model.GeoOrigin{}, ErrNoFix
	}
	prev = m.origin
	next = originFromFix(m.last)
	m.origin = next
	m.ready = true
	return prev, next, nil
}

// Drift returns the horizontal distance in metres between the latest fix
// and the origin.
func (m *OriginManager) Drift() (float64, bool) {
	if !m.ready || !m.hasLast {
		return 0, false
	}
	return GroundDistance(m.origin.Point(), m.last.Point()), true
}

// Reset forgets the origin and the latest fix.
func (m *OriginManager) Reset() {
	m.origin = model.GeoOrigin{}
	m.ready = false
	m.last = Fix{}
	m.hasLast = false
}

func originFromFix(f Fix) model.GeoOrigin {
	return model.GeoOrigin{
		Lat:            f.Lat,
		Lng:            f.Lng,
		AltBaseline:    f.Alt,
		HasAltBaseline: f.HasAlt,
	}
}
