// Command voxel-store serves placed entities over gRPC, backed by SQLite or
// memory, with Prometheus metrics and optional tracing.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/geovoxel/internal/config"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/internal/observability"
	"github.com/signalsfoundry/geovoxel/internal/storeapi"
	"github.com/signalsfoundry/geovoxel/store"
	"github.com/signalsfoundry/geovoxel/store/sqlite"
)

const (
	countInterval = 15 * time.Second
	stopTimeout   = 5 * time.Second
)

// backend is what the server needs beyond store.Store: gauges and shutdown.
type backend interface {
	store.Store
	store.OwnerCounter
	Subscribers() int
	Close() error
}

func main() {
	cfg, err := config.LoadStoreServer()
	log := logging.NewFromEnv()
	ctx := context.Background()
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	flag.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "TCP address the store gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database path (empty keeps entities in memory)")
	flag.Parse()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "store server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is done, then drains watches and stops gracefully.
func run(ctx context.Context, cfg config.StoreServerConfig, log logging.Logger, lis net.Listener) error {
	st, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn(context.Background(), "closing store", logging.Err(err))
		}
	}()

	collector, err := observability.NewRPCCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	opts := append(storeapi.ServerOptions(log, collector), grpc.StatsHandler(otelgrpc.NewServerHandler()))
	server := grpc.NewServer(opts...)
	svc := storeapi.NewServer(st, log)
	storeapi.Register(server, svc)

	countCtx, stopCounts := context.WithCancel(ctx)
	defer stopCounts()
	go reportCounts(countCtx, st, collector, log, countInterval)

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting store gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Bool("sqlite", cfg.SQLitePath != ""),
	)
	go func() { serveErr <- server.Serve(lis) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	log.Info(context.Background(), "shutting down store server")
	svc.Shutdown()
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		server.Stop()
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func openBackend(cfg config.StoreServerConfig, log logging.Logger) (backend, error) {
	if cfg.SQLitePath == "" {
		return store.NewMemory(store.WithFeedBuffer(cfg.FeedBuffer)), nil
	}
	st, err := sqlite.Open(cfg.SQLitePath,
		sqlite.WithLogger(log),
		sqlite.WithFeedBuffer(cfg.FeedBuffer),
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// reportCounts refreshes the entity and subscriber gauges.
func reportCounts(ctx context.Context, st backend, collector *observability.RPCCollector, log logging.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		byOwner, err := st.CountByOwner(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn(ctx, "counting entities", logging.Err(err))
		} else {
			total := 0
			for _, n := range byOwner {
				total += n
			}
			collector.SetStoreCounts(total, st.Subscribers())
			log.Debug(ctx, "store counts", logging.Int("entities", total), logging.Int("owners", len(byOwner)))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
