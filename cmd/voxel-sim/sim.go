package main

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/core"
	"github.com/signalsfoundry/geovoxel/internal/config"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/internal/session"
	"github.com/signalsfoundry/geovoxel/model"
	"github.com/signalsfoundry/geovoxel/timectrl"
)

const (
	// fixEvery is how often the simulated GPS reports.
	fixEvery = time.Second
	// recenterAfter is the walked distance that triggers a recenter.
	recenterAfter = 100.0
	// swayMeters and swayPeriod bend the walk into a gentle S-curve.
	swayMeters = 5.0
	swayPeriod = 40 * time.Second
)

// summary reports what a simulated walk did.
type summary struct {
	Frames    int
	Fixes     int
	Placed    int
	Removed   int
	Rejected  int
	Recenters int
	Entities  int
	Notices   map[string]int
}

// walker moves a virtual device north along an S-curve, feeding the engine
// frames, GPS fixes and periodic confirms.
type walker struct {
	cfg    config.SimConfig
	engine *session.Engine
	clock  *timectrl.Controller
	log    logging.Logger

	start     model.GeoOrigin
	began     time.Time
	lastFix   time.Time
	lastPlace time.Time
	recenterZ float64

	sum summary
}

func newWalker(cfg config.SimConfig, engine *session.Engine, clock *timectrl.Controller, log logging.Logger) *walker {
	return &walker{
		cfg:    cfg,
		engine: engine,
		clock:  clock,
		log:    log,
		start:  model.GeoOrigin{Lat: cfg.StartLat, Lng: cfg.StartLng},
		began:  clock.Now(),
		sum:    summary{Notices: make(map[string]int)},
	}
}

// position returns the device's world position after elapsed time. The world
// frame is the walk's starting point with -Z north.
func (w *walker) position(elapsed time.Duration) r3.Vec {
	s := elapsed.Seconds()
	return r3.Vec{
		X: swayMeters * math.Sin(2*math.Pi*s/swayPeriod.Seconds()),
		Z: -w.cfg.WalkSpeed * s,
	}
}

// align grants orientation with the device facing north.
func (w *walker) align(ctx context.Context) error {
	if err := w.engine.RequestAlignment(ctx, nil); err != nil {
		return err
	}
	return w.engine.OnHeading(ctx, 0)
}

// tick runs once per frame.
func (w *walker) tick(ctx context.Context, now time.Time) {
	pos := w.position(now.Sub(w.began))

	if w.sum.Fixes == 0 || now.Sub(w.lastFix) >= fixEvery {
		geo := core.ToGeo(w.start, pos)
		if err := w.engine.OnPosition(ctx, core.Fix{Lat: geo.Lat, Lng: geo.Lng, Accuracy: 4}); err == nil {
			w.sum.Fixes++
			w.lastFix = now
		}
	}

	w.engine.OnFrame(core.CameraPose{Position: pos, Forward: r3.Vec{Z: -1}})
	w.sum.Frames++

	if math.Abs(pos.Z-w.recenterZ) >= recenterAfter {
		if err := w.engine.Recenter(ctx); err == nil {
			w.sum.Recenters++
			w.recenterZ = pos.Z
		}
	}

	if w.cfg.PlaceEvery > 0 && now.Sub(w.lastPlace) >= w.cfg.PlaceEvery {
		w.lastPlace = now
		w.place(ctx)
	}
	w.drainNotifications(ctx)
}

func (w *walker) place(ctx context.Context) {
	decision, err := w.engine.Confirm(ctx)
	switch {
	case errors.Is(err, core.ErrNotReady):
		return
	case errors.Is(err, core.ErrNotOwner):
		w.sum.Rejected++
	case err != nil:
		w.log.Warn(ctx, "confirm failed", logging.Err(err))
	case decision == core.DecisionCreate:
		w.sum.Placed++
	case decision == core.DecisionRemove:
		w.sum.Removed++
	}
}

func (w *walker) drainNotifications(ctx context.Context) {
	for {
		select {
		case n := <-w.engine.Notifications():
			w.sum.Notices[n.Kind.String()]++
			w.log.Info(ctx, "notification",
				logging.String("kind", n.Kind.String()),
				logging.String("entity_id", n.EntityID),
				logging.Err(n.Err),
			)
		default:
			return
		}
	}
}

// walk drives the engine for duration of simulated time and returns what
// happened. The engine must already be running.
func walk(ctx context.Context, cfg config.SimConfig, engine *session.Engine, mode timectrl.Mode, duration time.Duration, log logging.Logger) (summary, error) {
	clock := timectrl.New(time.Unix(0, 0).UTC(), cfg.FrameInterval, mode)
	w := newWalker(cfg, engine, clock, log)
	if err := w.align(ctx); err != nil {
		log.Warn(ctx, "walking unaligned", logging.Err(err))
	}
	clock.AddListener(func(now time.Time) { w.tick(ctx, now) })

	err := clock.Run(ctx, duration)
	w.drainNotifications(ctx)
	w.sum.Entities = engine.Count()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return w.sum, err
}
