package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestOriginSetOnceFromFirstValidFix(t *testing.T) {
	m := NewOriginManager(0, 0)
	if m.Ready() {
		t.Fatalf("new manager should not be ready")
	}
	if _, ok := m.Origin(); ok {
		t.Fatalf("Origin() ok before any fix")
	}

	est, err := m.Observe(Fix{Lat: 37.7749, Lng: -122.4194, Alt: 10, HasAlt: true})
	if err != nil || !est {
		t.Fatalf("first Observe = %v, %v; want established", est, err)
	}
	est, err = m.Observe(Fix{Lat: 37.7750, Lng: -122.4195})
	if err != nil || est {
		t.Fatalf("second Observe = %v, %v; want not established", est, err)
	}

	o, ok := m.Origin()
	if !ok || o.Lat != 37.7749 || o.Lng != -122.4194 {
		t.Fatalf("origin = %+v, %v; want first fix", o, ok)
	}
	if !o.HasAltBaseline || o.AltBaseline != 10 {
		t.Fatalf("origin baseline = %+v, want 10", o)
	}
}

func TestObserveRejectsInvalidFixes(t *testing.T) {
	m := NewOriginManager(25, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	bad := []Fix{
		{Lat: math.NaN(), Lng: 0},
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: -181},
		{Lat: 0, Lng: 0, Accuracy: 80},
		{Lat: 0, Lng: 0, Time: now.Add(-2 * time.Minute)},
		{Lat: 0, Lng: 0, Alt: math.Inf(1), HasAlt: true},
	}
	for _, f := range bad {
		if _, err := m.Observe(f); !errors.Is(err, ErrInvalidFix) {
			t.Errorf("Observe(%+v) err = %v, want ErrInvalidFix", f, err)
		}
	}
	if m.Ready() {
		t.Fatalf("invalid fixes must not establish an origin")
	}

	if _, err := m.Observe(Fix{Lat: 1, Lng: 2, Accuracy: 5, Time: now.Add(-time.Second)}); err != nil {
		t.Fatalf("valid fix rejected: %v", err)
	}
}

func TestRecenterWithoutFix(t *testing.T) {
	m := NewOriginManager(0, 0)
	if _, _, err := m.Recenter(); !errors.Is(err, ErrNoFix) {
		t.Fatalf("Recenter err = %v, want ErrNoFix", err)
	}
}

func TestRecenterUsesLatestFix(t *testing.T) {
	m := NewOriginManager(0, 0)
	_, _ = m.Observe(Fix{Lat: 10, Lng: 20})
	_, _ = m.Observe(Fix{Lat: 10.0001, Lng: 20.0002, Alt: 3, HasAlt: true})

	if d, ok := m.Drift(); !ok || d <= 0 {
		t.Fatalf("Drift = %v, %v; want positive", d, ok)
	}

	prev, next, err := m.Recenter()
	if err != nil {
		t.Fatalf("Recenter: %v", err)
	}
	if prev.Lat != 10 || prev.Lng != 20 {
		t.Fatalf("prev = %+v", prev)
	}
	if next.Lat != 10.0001 || next.Lng != 20.0002 || next.AltBaseline != 3 {
		t.Fatalf("next = %+v", next)
	}
	if d, _ := m.Drift(); d != 0 {
		t.Fatalf("Drift after recenter = %v, want 0", d)
	}
}
