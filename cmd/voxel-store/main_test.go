package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/geovoxel/internal/config"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/internal/observability"
	"github.com/signalsfoundry/geovoxel/internal/storeapi"
	"github.com/signalsfoundry/geovoxel/model"
)

func TestStoreServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	cfg := config.StoreServerConfig{
		SQLitePath: filepath.Join(t.TempDir(), "voxels.db"),
		FeedBuffer: 16,
	}
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	runCtx, stopServer := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- run(runCtx, cfg, log, lis) }()

	client, err := storeapi.Dial(lis.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	feed, err := client.Watch(ctx, model.BoundingBox{})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	id, err := client.Insert(ctx, model.PlacedEntity{Lat: 37.77, Lon: -122.41, Color: "#ff8800", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := client.List(ctx, model.BoundingBox{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("List = %+v, want %s", got, id)
	}

	// An open watch must not block shutdown.
	stopServer()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("server did not stop")
	}

	for range feed {
	}
}

func TestReportCountsPublishesGauges(t *testing.T) {
	st, err := openBackend(config.StoreServerConfig{FeedBuffer: 4}, logging.Noop())
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	for _, owner := range []string{"alice", "alice", "bob"} {
		if _, err := st.Insert(ctx, model.PlacedEntity{Lat: 1, Lon: 1, Color: "#000000", OwnerID: owner}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	collector, err := observability.NewRPCCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	countCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportCounts(countCtx, st, collector, logging.Noop(), time.Hour)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(collector.StoreEntities) != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("entities gauge = %v, want 3", testutil.ToFloat64(collector.StoreEntities))
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
