package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes placement-session metrics.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Placements  prometheus.Counter
	Removals    prometheus.Counter
	Recenters   prometheus.Counter
	Rollbacks   *prometheus.CounterVec
	FeedEvents  *prometheus.CounterVec
	StoreOps    *prometheus.HistogramVec
	IndexSize   prometheus.Gauge
	VisibleSize prometheus.Gauge
	OriginDrift prometheus.Gauge
}

// NewEngineCollector registers session metrics against reg.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	reg, gatherer := gathererFor(reg)

	placements, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geovoxel_placements_total",
		Help: "Voxels placed by this client, counted when the store confirms.",
	}), "geovoxel_placements_total")
	if err != nil {
		return nil, err
	}
	removals, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geovoxel_removals_total",
		Help: "Voxels removed by this client, counted when the store confirms.",
	}), "geovoxel_removals_total")
	if err != nil {
		return nil, err
	}
	recenters, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geovoxel_recenters_total",
		Help: "Origin recenters performed.",
	}), "geovoxel_recenters_total")
	if err != nil {
		return nil, err
	}
	rollbacks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geovoxel_rollbacks_total",
		Help: "Optimistic edits undone after a store failure, by operation.",
	}, []string{"op"}), "geovoxel_rollbacks_total")
	if err != nil {
		return nil, err
	}
	feedEvents, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geovoxel_feed_events_total",
		Help: "Change-feed events by outcome (applied, deduped, ignored).",
	}, []string{"outcome"}), "geovoxel_feed_events_total")
	if err != nil {
		return nil, err
	}
	storeOps, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geovoxel_client_store_op_duration_seconds",
		Help:    "Latency of store calls issued by the session, by operation and result.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op", "result"}), "geovoxel_client_store_op_duration_seconds")
	if err != nil {
		return nil, err
	}
	indexSize, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geovoxel_index_entries",
		Help: "Entities held in the local spatial index.",
	}), "geovoxel_index_entries")
	if err != nil {
		return nil, err
	}
	visibleSize, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geovoxel_visible_entries",
		Help: "Indexed entities currently within the visible distance.",
	}), "geovoxel_visible_entries")
	if err != nil {
		return nil, err
	}
	drift, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geovoxel_origin_drift_meters",
		Help: "Ground distance between the latest position fix and the session origin.",
	}), "geovoxel_origin_drift_meters")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:    gatherer,
		Placements:  placements,
		Removals:    removals,
		Recenters:   recenters,
		Rollbacks:   rollbacks,
		FeedEvents:  feedEvents,
		StoreOps:    storeOps,
		IndexSize:   indexSize,
		VisibleSize: visibleSize,
		OriginDrift: drift,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *EngineCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func (c *EngineCollector) IncPlacement() {
	if c == nil {
		return
	}
	c.Placements.Inc()
}

func (c *EngineCollector) IncRemoval() {
	if c == nil {
		return
	}
	c.Removals.Inc()
}

func (c *EngineCollector) IncRecenter() {
	if c == nil {
		return
	}
	c.Recenters.Inc()
}

func (c *EngineCollector) IncRollback(op string) {
	if c == nil {
		return
	}
	c.Rollbacks.WithLabelValues(op).Inc()
}

func (c *EngineCollector) IncFeedEvent(outcome string) {
	if c == nil {
		return
	}
	c.FeedEvents.WithLabelValues(outcome).Inc()
}

// ObserveStoreOp records one store call.
func (c *EngineCollector) ObserveStoreOp(op string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.StoreOps.WithLabelValues(op, result).Observe(d.Seconds())
}

// SetIndexSize updates the index and visible-entry gauges.
func (c *EngineCollector) SetIndexSize(total, visible int) {
	if c == nil {
		return
	}
	c.IndexSize.Set(float64(total))
	c.VisibleSize.Set(float64(visible))
}

// SetOriginDrift updates the drift gauge. Negative values are clamped to 0.
func (c *EngineCollector) SetOriginDrift(meters float64) {
	if c == nil {
		return
	}
	if meters < 0 {
		meters = 0
	}
	c.OriginDrift.Set(meters)
}
