package core

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrPermissionDenied is returned by a PermissionRequester when the user
	// refuses orientation access.
	ErrPermissionDenied = errors.New("orientation permission denied")
	// ErrHeadingUnavailable indicates the platform has no heading source.
	ErrHeadingUnavailable = errors.New("heading unavailable")
)

// PermissionRequester asks the platform for orientation-sensor access. It
// must only be called in response to an explicit user action.
type PermissionRequester interface {
	RequestOrientationPermission(ctx context.Context) error
}

// AlignState is the orientation aligner's lifecycle.
type AlignState int

const (
	AlignUnrequested AlignState = iota
	AlignAwaitingPermission
	AlignAwaitingHeading
	AlignDone
	AlignDenied
	AlignUnavailable
)

func (s AlignState) String() string {
	switch s {
	case AlignUnrequested:
		return "unrequested"
	case AlignAwaitingPermission:
		return "awaiting_permission"
	case AlignAwaitingHeading:
		return "awaiting_heading"
	case AlignDone:
		return "aligned"
	case AlignDenied:
		return "denied"
	case AlignUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Degraded reports whether the session is running without north alignment
// because the sensor could not be used.
func (s AlignState) Degraded() bool {
	return s == AlignDenied || s == AlignUnavailable
}

// Aligner applies a one-shot yaw correction so that local -Z points north.
//
// The yaw is the compass heading the camera faced when the first heading
// arrived. World (session) coordinates relate to the local geographic frame
// by a rotation of yaw radians about +Y.
type Aligner struct {
	state AlignState
	yaw   float64

	toWorld r3.Rotation
	toLocal r3.Rotation
}

// NewAligner returns an aligner with identity rotation.
func NewAligner() *Aligner {
	a := &Aligner{}
	a.setYaw(0)
	return a
}

// State returns the current lifecycle state.
func (a *Aligner) State() AlignState { return a.state }

// Aligned reports whether a heading has been applied.
func (a *Aligner) Aligned() bool { return a.state == AlignDone }

// Yaw returns the applied yaw in radians.
func (a *Aligner) Yaw() float64 { return a.yaw }

// Request asks for orientation permission. A nil requester means the
// platform needs no grant. On failure the aligner moves to a degraded state
// and returns the error; placement continues unaligned.
func (a *Aligner) Request(ctx context.Context, req PermissionRequester) error {
	if a.state == AlignDone {
		return nil
	}
	a.state = AlignAwaitingPermission
	if req != nil {
		if err := req.RequestOrientationPermission(ctx); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				a.state = AlignDenied
			} else {
				a.state = AlignUnavailable
			}
			return err
		}
	}
	a.state = AlignAwaitingHeading
	return nil
}

// MarkUnavailable records that the heading source failed.
func (a *Aligner) MarkUnavailable() {
	if a.state != AlignDone {
		a.state = AlignUnavailable
	}
}

// OnHeading applies a compass heading (degrees clockwise from north) if the
// aligner is waiting for one. It reports whether the heading was applied.
// Once aligned, further headings are ignored until Realign.
func (a *Aligner) OnHeading(deg float64) bool {
	if a.state != AlignAwaitingHeading {
		return false
	}
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return false
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	a.setYaw(deg * math.Pi / 180.0)
	a.state = AlignDone
	return true
}

// Realign discards the current alignment and waits for the next heading.
func (a *Aligner) Realign() {
	a.state = AlignAwaitingHeading
}

// ToLocalFrame maps a session/world-space vector into the geographic local
// frame.
func (a *Aligner) ToLocalFrame(world r3.Vec) r3.Vec {
	return a.toLocal.Rotate(world)
}

// ToWorldFrame maps a local-frame vector into session/world space.
func (a *Aligner) ToWorldFrame(local r3.Vec) r3.Vec {
	return a.toWorld.Rotate(local)
}

func (a *Aligner) setYaw(yaw float64) {
	up := r3.Vec{Y: 1}
	a.yaw = yaw
	a.toWorld = r3.NewRotation(yaw, up)
	a.toLocal = r3.NewRotation(-yaw, up)
}
