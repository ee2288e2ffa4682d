package core

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

type stubPermission struct {
	err   error
	calls int
}

func (s *stubPermission) RequestOrientationPermission(context.Context) error {
	s.calls++
	return s.err
}

func TestAlignerIgnoresHeadingUntilRequested(t *testing.T) {
	a := NewAligner()
	if a.OnHeading(90) {
		t.Fatalf("heading applied without an explicit request")
	}
	if a.State() != AlignUnrequested {
		t.Fatalf("state = %v, want unrequested", a.State())
	}
}

func TestAlignerOneShot(t *testing.T) {
	a := NewAligner()
	perm := &stubPermission{}
	if err := a.Request(context.Background(), perm); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if perm.calls != 1 {
		t.Fatalf("permission requested %d times, want 1", perm.calls)
	}
	if !a.OnHeading(90) {
		t.Fatalf("first heading not applied")
	}
	if a.OnHeading(180) {
		t.Fatalf("second heading applied; alignment must be idempotent")
	}
	if !a.Aligned() {
		t.Fatalf("state = %v, want aligned", a.State())
	}

	// Facing east, north is on the camera's left (world -X).
	north := r3.Vec{Z: -10}
	world := a.ToWorldFrame(north)
	if !IsSameLocation(world, r3.Vec{X: -10}, 1e-9) {
		t.Fatalf("north in world = %+v, want (-10,0,0)", world)
	}
	if back := a.ToLocalFrame(world); !IsSameLocation(back, north, 1e-9) {
		t.Fatalf("ToLocalFrame(ToWorldFrame(v)) = %+v, want %+v", back, north)
	}

	a.Realign()
	if !a.OnHeading(180) {
		t.Fatalf("heading after Realign not applied")
	}
}

func TestAlignerDeniedIsDegradedNotFatal(t *testing.T) {
	a := NewAligner()
	err := a.Request(context.Background(), &stubPermission{err: ErrPermissionDenied})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Request err = %v, want ErrPermissionDenied", err)
	}
	if a.State() != AlignDenied || !a.State().Degraded() {
		t.Fatalf("state = %v, want degraded denied", a.State())
	}
	if got := a.ToLocalFrame(r3.Vec{X: 1}); !IsSameLocation(got, r3.Vec{X: 1}, 1e-12) {
		t.Fatalf("unaligned frame should be identity, got %+v", got)
	}

	a2 := NewAligner()
	_ = a2.Request(context.Background(), &stubPermission{err: errors.New("sensor missing")})
	if a2.State() != AlignUnavailable {
		t.Fatalf("state = %v, want unavailable", a2.State())
	}
}
