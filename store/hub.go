package store

import (
	"context"
	"sync"

	"github.com/signalsfoundry/geovoxel/model"
)

// DefaultFeedBuffer is the per-subscriber channel capacity.
const DefaultFeedBuffer = 64

// Hub fans change events out to bounding-box filtered subscribers. A
// subscriber whose buffer is full is dropped and its channel closed rather
// than blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	closed bool
	done   chan struct{}
}

type subscriber struct {
	box model.BoundingBox
	ch  chan model.Change
}

// NewHub returns a hub with the given per-subscriber buffer; non-positive
// values use DefaultFeedBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Hub{subs: make(map[int]*subscriber), buffer: buffer, done: make(chan struct{})}
}

// Subscribe registers a feed for box. The channel closes when ctx is done,
// when the subscriber falls behind, or when the hub closes.
func (h *Hub) Subscribe(ctx context.Context, box model.BoundingBox) (<-chan model.Change, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	sub := &subscriber{box: box, ch: make(chan model.Change, h.buffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.drop(id)
		case <-h.done:
		}
	}()
	return sub.ch, nil
}

// Publish delivers c to every subscriber whose box contains the entity.
func (h *Hub) Publish(c model.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if !InBox(sub.box, c.Entity) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			delete(h.subs, id)
			close(sub.ch)
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) drop(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}
