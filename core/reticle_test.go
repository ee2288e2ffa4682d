package core

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/model"
)

var lookNorth = CameraPose{Forward: r3.Vec{Z: -1}}

func TestReticleForwardOffsetScenario(t *testing.T) {
	origin := model.GeoOrigin{Lat: 37.7749, Lng: -122.4194}
	r := NewReticle(0.1, 1.2)
	frame := LocalFrame{Aligner: NewAligner()}

	r.Update(lookNorth, frame, true)

	if raw := r.Raw(); math.Abs(raw.Z+1.2) > 1e-12 || raw.X != 0 || raw.Y != 0 {
		t.Fatalf("raw reticle = %+v, want z=-1.2", raw)
	}
	target, ok := r.Target()
	if !ok {
		t.Fatalf("reticle hidden with origin ready")
	}
	if math.Abs(target.Z+1.2) > 1e-9 {
		t.Fatalf("snapped z = %v, want -1.2", target.Z)
	}

	// -Z is north, so a point 1.2m ahead lies 1.2m north of the origin.
	geo := ToGeo(origin, target)
	if want := 37.7749 + 1.2/MetersPerDegree; math.Abs(geo.Lat-want) > 1e-9 {
		t.Fatalf("lat = %.10f, want %.10f", geo.Lat, want)
	}
	if math.Abs(geo.Lng-origin.Lng) > 1e-12 {
		t.Fatalf("lng = %v, want unchanged", geo.Lng)
	}
}

func TestReticleSnapsToGrid(t *testing.T) {
	r := NewReticle(0.25, 1)
	pose := CameraPose{Position: r3.Vec{X: 0.1, Y: 1.37}, Forward: r3.Vec{Z: -1}}
	r.Update(pose, LocalFrame{}, true)

	got, _ := r.Target()
	want := r3.Vec{X: 0, Y: 1.25, Z: -1}
	if !IsSameLocation(got, want, 1e-12) {
		t.Fatalf("target = %+v, want %+v", got, want)
	}
	if again := SnapVec(got, 0.25); again != got {
		t.Fatalf("re-snapping target changed it: %+v -> %+v", got, again)
	}
}

func TestReticleHiddenWithoutOrigin(t *testing.T) {
	r := NewReticle(0.1, 1.2)
	r.Update(lookNorth, LocalFrame{}, false)
	if r.Visible() {
		t.Fatalf("reticle visible without origin")
	}
	if err := r.BeginDrafting(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("BeginDrafting err = %v, want ErrNotReady", err)
	}
	if _, err := r.ConfirmTarget(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ConfirmTarget err = %v, want ErrNotReady", err)
	}
}

func TestReticleDraftingFreezesAndSteps(t *testing.T) {
	r := NewReticle(0.1, 1)
	r.Update(lookNorth, LocalFrame{}, true)
	frozen, _ := r.Target()

	if err := r.Move(AxisX, 1); !errors.Is(err, ErrNotDrafting) {
		t.Fatalf("Move while tracking err = %v, want ErrNotDrafting", err)
	}
	if err := r.BeginDrafting(); err != nil {
		t.Fatalf("BeginDrafting: %v", err)
	}

	r.Update(CameraPose{Position: r3.Vec{X: 5}, Forward: r3.Vec{X: 1}}, LocalFrame{}, true)
	if got, _ := r.Target(); got != frozen {
		t.Fatalf("drafting reticle moved with camera: %+v", got)
	}

	if err := r.Move(AxisX, 1); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := r.Move(AxisY, 1); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := r.Move(AxisY, -1); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, _ := r.Target()
	if !IsSameLocation(got, r3.Add(frozen, r3.Vec{X: 0.1}), 1e-12) {
		t.Fatalf("after moves target = %+v, want one step east of %+v", got, frozen)
	}

	r.Cancel()
	if r.State() != ReticleTracking {
		t.Fatalf("state after Cancel = %v", r.State())
	}
	r.Update(lookNorth, LocalFrame{}, true)
	if got, _ := r.Target(); got != frozen {
		t.Fatalf("tracking after cancel = %+v, want %+v", got, frozen)
	}
}

func TestLocalFrameAnchor(t *testing.T) {
	frame := LocalFrame{Anchor: r3.Vec{X: 3, Z: -4}, Aligner: NewAligner()}
	local := frame.ToLocal(r3.Vec{X: 3, Y: 1, Z: -5})
	if !IsSameLocation(local, r3.Vec{Y: 1, Z: -1}, 1e-12) {
		t.Fatalf("ToLocal = %+v", local)
	}
	if world := frame.ToWorld(local); !IsSameLocation(world, r3.Vec{X: 3, Y: 1, Z: -5}, 1e-12) {
		t.Fatalf("ToWorld = %+v", world)
	}
}
