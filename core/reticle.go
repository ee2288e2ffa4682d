package core

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNotDrafting is returned by reticle commands that need the Drafting state.
var ErrNotDrafting = errors.New("reticle is not drafting")

// CameraPose is the camera's world-space pose for one frame. Forward should
// be a unit vector; the runtime's default forward is -Z.
type CameraPose struct {
	Position r3.Vec
	Forward  r3.Vec
}

// LocalFrame relates session/world space to the geographic local frame:
// world = Rotate(local) + Anchor. Anchor is where the device stood, in world
// space, when the current origin was taken.
type LocalFrame struct {
	Anchor  r3.Vec
	Aligner *Aligner
}

// ToLocal maps a world-space point into the local frame.
func (f LocalFrame) ToLocal(world r3.Vec) r3.Vec {
	p := r3.Sub(world, f.Anchor)
	if f.Aligner == nil {
		return p
	}
	return f.Aligner.ToLocalFrame(p)
}

// ToWorld maps a local-frame point into world space.
func (f LocalFrame) ToWorld(local r3.Vec) r3.Vec {
	p := local
	if f.Aligner != nil {
		p = f.Aligner.ToWorldFrame(local)
	}
	return r3.Add(p, f.Anchor)
}

// ReticleState is the placement reticle's mode.
type ReticleState int

const (
	// ReticleTracking follows the camera every frame.
	ReticleTracking ReticleState = iota
	// ReticleDrafting is frozen while the user adjusts a pending placement.
	ReticleDrafting
)

func (s ReticleState) String() string {
	if s == ReticleDrafting {
		return "drafting"
	}
	return "tracking"
}

// Reticle computes the quantized candidate placement point.
type Reticle struct {
	GridSpacing   float64
	ForwardOffset float64

	state   ReticleState
	raw     r3.Vec
	target  r3.Vec
	visible bool
}

// NewReticle constructs a tracking reticle.
func NewReticle(gridSpacing, forwardOffset float64) *Reticle {
	return &Reticle{GridSpacing: gridSpacing, ForwardOffset: forwardOffset}
}

// State returns the current mode.
func (r *Reticle) State() ReticleState { return r.state }

// Visible reports whether the reticle has a position. It is false until the
// first frame after an origin exists.
func (r *Reticle) Visible() bool { return r.visible }

// Target returns the snapped local-frame position.
func (r *Reticle) Target() (r3.Vec, bool) { return r.target, r.visible }

// Raw returns the local-frame position before snapping.
func (r *Reticle) Raw() r3.Vec { return r.raw }

// Update recomputes the reticle for one frame. It does nothing while
// drafting. When ready is false (no origin) the reticle is hidden.
func (r *Reticle) Update(pose CameraPose, frame LocalFrame, ready bool) {
	if r.state == ReticleDrafting {
		return
	}
	if !ready {
		r.visible = false
		return
	}
	world := r3.Add(pose.Position, r3.Scale(r.ForwardOffset, pose.Forward))
	r.raw = frame.ToLocal(world)
	r.target = SnapVec(r.raw, r.GridSpacing)
	r.visible = true
}

// Hide clears the reticle and returns to tracking; used when the frame it
// was computed in becomes invalid.
func (r *Reticle) Hide() {
	r.state = ReticleTracking
	r.visible = false
}

// BeginDrafting freezes the reticle at its last position.
func (r *Reticle) BeginDrafting() error {
	if !r.visible {
		return ErrNotReady
	}
	r.state = ReticleDrafting
	return nil
}

// Move shifts a drafting reticle by exactly one grid step along axis.
func (r *Reticle) Move(axis Axis, dir int) error {
	if r.state != ReticleDrafting {
		return ErrNotDrafting
	}
	r.target = SnapVec(r3.Add(r.target, Step(axis, dir, r.GridSpacing)), r.GridSpacing)
	return nil
}

// Cancel returns to tracking without side effects.
func (r *Reticle) Cancel() {
	r.state = ReticleTracking
}

// ConfirmTarget returns the position a confirm should act on: the frozen
// point while drafting, or the current tracked point otherwise. It does not
// change state; call FinishConfirm once the decision has been applied.
func (r *Reticle) ConfirmTarget() (r3.Vec, error) {
	if !r.visible {
		return r3.Vec{}, ErrNotReady
	}
	return r.target, nil
}

// FinishConfirm returns to tracking after a confirm.
func (r *Reticle) FinishConfirm() {
	r.state = ReticleTracking
}
