package index

import (
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/model"
)

// Handle identifies a render object owned by the rendering runtime.
type Handle uint64

// Renderer is the slice of the rendering runtime the index drives. Positions
// are local-frame coordinates under the yaw-rotated scene root.
type Renderer interface {
	Spawn(e model.PlacedEntity, local r3.Vec) Handle
	SetVisible(h Handle, visible bool)
	Destroy(h Handle)
}

// NopRenderer hands out unique handles and draws nothing. Headless clients
// and tests use it.
type NopRenderer struct {
	next *atomic.Uint64
}

// NewNopRenderer returns a renderer that numbers handles from 1.
func NewNopRenderer() NopRenderer {
	return NopRenderer{next: new(atomic.Uint64)}
}

func (r NopRenderer) Spawn(model.PlacedEntity, r3.Vec) Handle {
	if r.next == nil {
		return 0
	}
	return Handle(r.next.Add(1))
}

func (NopRenderer) SetVisible(Handle, bool) {}

func (NopRenderer) Destroy(Handle) {}
