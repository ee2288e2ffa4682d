package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/geovoxel/model"
	"github.com/signalsfoundry/geovoxel/store"
)

var _ store.Store = (*Store)(nil)
var _ store.OwnerCounter = (*Store)(nil)

func openTempStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "voxels.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func voxel(lat, lon float64, owner string) model.PlacedEntity {
	return model.PlacedEntity{Lat: lat, Lon: lon, Alt: 1.5, Color: "#3366ff", OwnerID: owner}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxels.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Insert(context.Background(), voxel(1, 2, "alice"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List(context.Background(), model.BoundingBox{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, 1.5, got[0].Alt)
}

func TestInsertListDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	s := openTempStore(t, WithClock(func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}))

	a, err := s.Insert(ctx, voxel(37.7749, -122.4194, "alice"))
	require.NoError(t, err)
	b, err := s.Insert(ctx, voxel(37.7750, -122.4195, "bob"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, voxel(40, -100, "bob"))
	require.NoError(t, err)

	box := model.BoundingBox{MinLat: 37.77, MinLng: -122.42, MaxLat: 37.78, MaxLng: -122.41}
	got, err := s.List(ctx, box)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].ID)
	assert.Equal(t, b, got[1].ID)
	assert.True(t, t0.Add(time.Second).Equal(got[0].CreatedAt), "created_at = %v", got[0].CreatedAt)

	assert.ErrorIs(t, s.Delete(ctx, a, "bob"), store.ErrNotOwner)
	require.NoError(t, s.Delete(ctx, a, "alice"))
	assert.ErrorIs(t, s.Delete(ctx, a, "alice"), store.ErrNotFound)

	counts, err := s.CountByOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 2}, counts)
}

func TestInsertRejectsInvalid(t *testing.T) {
	s := openTempStore(t)
	_, err := s.Insert(context.Background(), model.PlacedEntity{Lat: 1, Lon: 1, OwnerID: "alice", Color: "blue"})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestWatchPublishesAfterCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := openTempStore(t)

	feed, err := s.Watch(ctx, model.BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1})
	require.NoError(t, err)

	_, err = s.Insert(ctx, voxel(2, 2, "alice"))
	require.NoError(t, err)
	id, err := s.Insert(ctx, voxel(0.5, 0.5, "alice"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id, "alice"))

	for _, want := range []model.ChangeType{model.ChangeCreated, model.ChangeDeleted} {
		select {
		case c := <-feed:
			assert.Equal(t, want, c.Type)
			assert.Equal(t, id, c.Entity.ID)
			assert.Equal(t, 0.5, c.Entity.Lat)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}
