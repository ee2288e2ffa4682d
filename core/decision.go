package core

import "errors"

// ErrNotOwner is returned when a confirm lands on a voxel owned by someone
// else.
var ErrNotOwner = errors.New("voxel belongs to another user")

// Decision is the outcome of confirming a placement.
type Decision int

const (
	// DecisionCreate places a new voxel at the reticle.
	DecisionCreate Decision = iota
	// DecisionRemove deletes the voxel already at the reticle.
	DecisionRemove
	// DecisionReject leaves everything untouched.
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionRemove:
		return "remove"
	case DecisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Occupant describes the voxel found at the reticle, if any.
type Occupant struct {
	EntityID string
	OwnerID  string
}

// Decide applies toggle semantics to a confirm. An empty location creates; an
// occupied location is removed only when requester owns the occupant.
// Confirming on another user's voxel is rejected with ErrNotOwner: it neither
// removes their voxel nor stacks a duplicate on top of it.
func Decide(occupant *Occupant, requester string) (Decision, error) {
	if occupant == nil {
		return DecisionCreate, nil
	}
	if occupant.OwnerID != requester {
		return DecisionReject, ErrNotOwner
	}
	return DecisionRemove, nil
}
