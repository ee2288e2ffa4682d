package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Snap rounds v to the nearest multiple of the grid spacing g. Snapping an
// already-snapped value returns it unchanged. A non-positive g disables
// snapping.
func Snap(v, g float64) float64 {
	if g <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v/g) * g
}

// SnapVec snaps each axis independently.
func SnapVec(v r3.Vec, g float64) r3.Vec {
	return r3.Vec{X: Snap(v.X, g), Y: Snap(v.Y, g), Z: Snap(v.Z, g)}
}

// IsSameLocation reports whether a and b refer to the same voxel, i.e. lie
// within eps metres of each other.
func IsSameLocation(a, b r3.Vec, eps float64) bool {
	return r3.Norm(r3.Sub(a, b)) <= eps
}

// Axis selects a local-frame axis for discrete reticle moves.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

// ParseAxis maps "x", "y" or "z" onto an Axis.
func ParseAxis(s string) (Axis, bool) {
	switch s {
	case "x", "X":
		return AxisX, true
	case "y", "Y":
		return AxisY, true
	case "z", "Z":
		return AxisZ, true
	default:
		return 0, false
	}
}

// Step returns the vector for one grid step along axis in direction dir
// (dir is reduced to its sign).
func Step(axis Axis, dir int, g float64) r3.Vec {
	d := 0.0
	switch {
	case dir > 0:
		d = g
	case dir < 0:
		d = -g
	}
	switch axis {
	case AxisX:
		return r3.Vec{X: d}
	case AxisY:
		return r3.Vec{Y: d}
	case AxisZ:
		return r3.Vec{Z: d}
	default:
		return r3.Vec{}
	}
}
