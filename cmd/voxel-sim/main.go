// Command voxel-sim walks a virtual device along a GPS track and places
// voxels as it goes. It runs the full placement session headless against an
// in-memory store or a voxel-store server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/geovoxel/index"
	"github.com/signalsfoundry/geovoxel/internal/config"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/internal/observability"
	"github.com/signalsfoundry/geovoxel/internal/session"
	"github.com/signalsfoundry/geovoxel/internal/storeapi"
	"github.com/signalsfoundry/geovoxel/store"
	"github.com/signalsfoundry/geovoxel/timectrl"
)

func main() {
	cfg, err := config.LoadSim()
	log := logging.NewFromEnv()
	ctx := context.Background()
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	duration := flag.Duration("duration", 2*time.Minute, "simulated walk duration")
	accelerated := flag.Bool("accelerated", true, "run as fast as possible instead of in real time")
	flag.StringVar(&cfg.Engine.OwnerID, "owner", cfg.Engine.OwnerID, "owner id for placed voxels (random when empty)")
	flag.StringVar(&cfg.StoreAddr, "store-addr", cfg.StoreAddr, "voxel-store gRPC address (empty uses an in-memory store)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	flag.Parse()

	if cfg.Engine.OwnerID == "" {
		cfg.Engine.OwnerID = uuid.NewString()
	}
	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := run(stopCtx, cfg, mode, *duration, log)
	if err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "simulation finished",
		logging.Int("frames", sum.Frames),
		logging.Int("fixes", sum.Fixes),
		logging.Int("placed", sum.Placed),
		logging.Int("removed", sum.Removed),
		logging.Int("rejected", sum.Rejected),
		logging.Int("recenters", sum.Recenters),
		logging.Int("entities", sum.Entities),
		logging.Any("notifications", sum.Notices),
	)
}

func run(ctx context.Context, cfg config.SimConfig, mode timectrl.Mode, duration time.Duration, log logging.Logger) (summary, error) {
	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return summary{}, err
	}
	defer closeStore()

	collector, err := observability.NewEngineCollector(prometheus.NewRegistry())
	if err != nil {
		return summary{}, err
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector.Handler(), log)

	engine, err := session.New(cfg.Engine, st,
		session.WithLogger(log.With(logging.String("owner_id", cfg.Engine.OwnerID))),
		session.WithMetrics(collector),
		session.WithRenderer(index.NewNopRenderer()),
	)
	if err != nil {
		return summary{}, err
	}

	runCtx, stopEngine := context.WithCancel(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(runCtx) }()

	log.Info(ctx, "walking",
		logging.String("mode", mode.String()),
		logging.Any("duration", duration),
		logging.Float64("start_lat", cfg.StartLat),
		logging.Float64("start_lng", cfg.StartLng),
		logging.Bool("remote_store", cfg.StoreAddr != ""),
	)
	sum, walkErr := walk(runCtx, cfg, engine, mode, duration, log)

	stopEngine()
	if err := <-engineDone; err != nil && walkErr == nil {
		walkErr = err
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return sum, walkErr
}

func openStore(cfg config.SimConfig, log logging.Logger) (store.Store, func(), error) {
	if cfg.StoreAddr == "" {
		mem := store.NewMemory()
		return mem, func() { _ = mem.Close() }, nil
	}
	client, err := storeapi.Dial(cfg.StoreAddr, log)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
