package session

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/core"
	"github.com/signalsfoundry/geovoxel/model"
)

// NotificationKind classifies a user-visible, non-fatal problem.
type NotificationKind int

const (
	NotifyCreateFailed NotificationKind = iota + 1
	NotifyDeleteFailed
	NotifyNotOwner
	NotifyNoFix
	NotifyFeedLost
	NotifyLocationDenied
	NotifyAlignmentDegraded
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyCreateFailed:
		return "create_failed"
	case NotifyDeleteFailed:
		return "delete_failed"
	case NotifyNotOwner:
		return "not_owner"
	case NotifyNoFix:
		return "no_fix"
	case NotifyFeedLost:
		return "feed_lost"
	case NotifyLocationDenied:
		return "location_denied"
	case NotifyAlignmentDegraded:
		return "alignment_degraded"
	default:
		return "unknown"
	}
}

// Notification is emitted on Engine.Notifications.
type Notification struct {
	Kind     NotificationKind
	EntityID string
	Err      error
}

// Status is a point-in-time view of the session for UI and diagnostics.
type Status struct {
	OriginReady bool
	Origin      model.GeoOrigin

	LocationDenied    bool
	Alignment         core.AlignState
	AlignmentDegraded bool
	// Yaw and Anchor place the scene root: world = Rotate(local, Yaw) + Anchor.
	Yaw    float64
	Anchor r3.Vec

	Reticle       core.ReticleState
	ReticleVisible bool
	Target         r3.Vec

	Entities int
	Visible  int
	Pending  int

	FeedConnected bool
	Box           model.BoundingBox
}
