package store

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/geovoxel/model"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func voxel(lat, lon float64, owner string) model.PlacedEntity {
	return model.PlacedEntity{Lat: lat, Lon: lon, Color: "#00ff88", OwnerID: owner}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		e    model.PlacedEntity
		ok   bool
	}{
		{"valid", voxel(37.7, -122.4, "alice"), true},
		{"lat out of range", voxel(91, 0, "alice"), false},
		{"lon out of range", voxel(0, 181, "alice"), false},
		{"no owner", voxel(0, 0, " "), false},
		{"bad color", model.PlacedEntity{OwnerID: "alice", Color: "red"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.e)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEntity)
			}
		})
	}
}

func TestMemoryInsertListDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithIDGenerator(sequentialIDs()), WithClock(fixedClock()))

	id1, err := m.Insert(ctx, voxel(10, 10, "alice"))
	require.NoError(t, err)
	id2, err := m.Insert(ctx, voxel(10.001, 10.001, "bob"))
	require.NoError(t, err)
	_, err = m.Insert(ctx, voxel(50, 50, "bob"))
	require.NoError(t, err)

	box := model.BoundingBox{MinLat: 9.9, MinLng: 9.9, MaxLat: 10.1, MaxLng: 10.1}
	got, err := m.List(ctx, box)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{id1, id2}, ids); diff != "" {
		t.Fatalf("List ids mismatch (-want +got):\n%s", diff)
	}

	require.ErrorIs(t, m.Delete(ctx, id1, "bob"), ErrNotOwner)
	require.NoError(t, m.Delete(ctx, id1, "alice"))
	require.ErrorIs(t, m.Delete(ctx, id1, "alice"), ErrNotFound)
	assert.Equal(t, 2, m.Len())

	counts, err := m.CountByOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 2}, counts)
}

func TestMemoryWatchFiltersByBox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	box := model.BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}
	feed, err := m.Watch(ctx, box)
	require.NoError(t, err)

	_, err = m.Insert(ctx, voxel(5, 5, "alice"))
	require.NoError(t, err)
	inside, err := m.Insert(ctx, voxel(0.5, 0.5, "alice"))
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, inside, "alice"))

	first := recv(t, feed)
	assert.Equal(t, model.ChangeCreated, first.Type)
	assert.Equal(t, inside, first.Entity.ID)

	second := recv(t, feed)
	assert.Equal(t, model.ChangeDeleted, second.Type)
	assert.Equal(t, inside, second.Entity.ID)

	select {
	case c := <-feed:
		t.Fatalf("unexpected extra change %+v", c)
	default:
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()
	feed, err := m.Watch(ctx, model.BoundingBox{})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-feed:
		require.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatalf("feed not closed after cancel")
	}
	require.Eventually(t, func() bool { return m.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	feed, err := h.Subscribe(context.Background(), model.BoundingBox{})
	require.NoError(t, err)

	h.Publish(model.Change{Type: model.ChangeCreated, Entity: model.PlacedEntity{ID: "a"}})
	h.Publish(model.Change{Type: model.ChangeCreated, Entity: model.PlacedEntity{ID: "b"}})

	c, ok := <-feed
	require.True(t, ok)
	assert.Equal(t, "a", c.Entity.ID)
	_, ok = <-feed
	assert.False(t, ok, "overflowing subscriber should be closed")
	assert.Equal(t, 0, h.Len())
}

func TestHubClose(t *testing.T) {
	h := NewHub(0)
	feed, err := h.Subscribe(context.Background(), model.BoundingBox{})
	require.NoError(t, err)
	h.Close()

	_, ok := <-feed
	assert.False(t, ok)
	_, err = h.Subscribe(context.Background(), model.BoundingBox{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHubCloseReleasesWatchers(t *testing.T) {
	base := runtime.NumGoroutine()
	h := NewHub(0)
	for i := 0; i < 20; i++ {
		_, err := h.Subscribe(context.Background(), model.BoundingBox{})
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, runtime.NumGoroutine(), base+20)

	h.Close()
	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= base }, 2*time.Second, 10*time.Millisecond)
}

func recv(t *testing.T, ch <-chan model.Change) model.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "feed closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change")
		return model.Change{}
	}
}
