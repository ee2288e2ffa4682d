package session

import "github.com/signalsfoundry/geovoxel/model"

// OpKind names a remote store mutation.
type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is a store mutation the session has already applied optimistically.
type Op struct {
	Kind OpKind
	// TempID is the local key of a pending create.
	TempID string
	// ID is the store id of the entity to delete.
	ID     string
	Entity model.PlacedEntity
}

// OpResult reports how the store answered an Op. For creates ID carries the
// store-assigned id.
type OpResult struct {
	Op  Op
	ID  string
	Err error
}

// Feed outcomes reported to Metrics.IncFeedEvent.
const (
	FeedApplied = "applied"
	FeedDeduped = "deduped"
	FeedIgnored = "ignored"
)
