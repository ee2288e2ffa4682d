package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geovoxel/core"
	"github.com/signalsfoundry/geovoxel/index"
	"github.com/signalsfoundry/geovoxel/internal/config"
	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/internal/observability"
	"github.com/signalsfoundry/geovoxel/model"
	"github.com/signalsfoundry/geovoxel/store"
)

var (
	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("session stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("session already running")

	errFeedClosed = errors.New("change feed closed")
)

const (
	commandBuffer      = 64
	resultBuffer       = 64
	feedBuffer         = 128
	notificationBuffer = 32
)

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the base logger; Run annotates it with a session id.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithRenderer sets the rendering runtime the index drives.
func WithRenderer(r index.Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

type feedKind int

const (
	feedSnapshot feedKind = iota
	feedChange
	feedClosed
)

type feedMsg struct {
	gen      int
	kind     feedKind
	entities []model.PlacedEntity
	change   model.Change
	err      error
}

// Engine is one placement session. Run owns a single event loop; every
// sensor sample, frame, command, store completion and feed event is
// handled there, so the origin, aligner, reticle and sync state need no
// locking.
type Engine struct {
	cfg      config.EngineConfig
	store    store.Store
	log      logging.Logger
	metrics  Metrics
	renderer index.Renderer

	origins *core.OriginManager
	aligner *core.Aligner
	reticle *core.Reticle
	index   *index.SpatialIndex
	sync    *Synchronizer
	view    *core.ViewTracker

	camera         core.CameraPose
	hasCamera      bool
	anchor         r3.Vec
	locationDenied bool

	feedGen       int
	feedCancel    context.CancelFunc
	feedConnected bool
	retry         *time.Timer

	cmds    chan func(context.Context)
	frames  chan core.CameraPose
	results chan OpResult
	feed    chan feedMsg
	notes   chan Notification

	started atomic.Bool
	done    chan struct{}

	statusMu sync.RWMutex
	status   Status
}

// New constructs an engine for cfg backed by st.
func New(cfg config.EngineConfig, st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if strings.TrimSpace(cfg.OwnerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		store:   st,
		log:     logging.Noop(),
		metrics: nopMetrics{},
		origins: core.NewOriginManager(cfg.MaxFixAccuracy, cfg.MaxFixAge),
		aligner: core.NewAligner(),
		reticle: core.NewReticle(cfg.GridSpacing, cfg.ForwardOffset),
		view:    core.NewViewTracker(cfg.ViewRadius, cfg.RefreshDistance),
		cmds:    make(chan func(context.Context), commandBuffer),
		frames:  make(chan core.CameraPose, 1),
		results: make(chan OpResult, resultBuffer),
		feed:    make(chan feedMsg, feedBuffer),
		notes:   make(chan Notification, notificationBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.index = index.New(e.renderer, cfg.Epsilon())
	e.sync = NewSynchronizer(e.index, cfg.OwnerID, e.metrics, e.log)
	e.publishStatus()
	return e, nil
}

// Run processes session events until ctx is cancelled. Feed subscriptions
// and render handles are released before it returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, log := logging.WithSessionLogger(ctx, e.log)
	e.log = log
	e.sync.log = log
	defer e.shutdown(ctx)

	log.Info(ctx, "session started",
		logging.String("owner_id", e.cfg.OwnerID),
		logging.Float64("grid_spacing", e.cfg.GridSpacing),
		logging.Float64("view_radius", e.cfg.ViewRadius),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "session ended")
			return nil
		case fn := <-e.cmds:
			fn(ctx)
		case pose := <-e.frames:
			e.handleFrame(pose)
		case res := <-e.results:
			e.handleResult(ctx, res)
		case msg := <-e.feed:
			e.handleFeed(ctx, msg)
		}
		e.publishStatus()
	}
}

func (e *Engine) shutdown(ctx context.Context) {
	if e.feedCancel != nil {
		e.feedCancel()
	}
	if e.retry != nil {
		e.retry.Stop()
	}
	e.sync.Reset()
	e.reticle.Hide()
	close(e.done)
	e.publishStatus()
	e.log.Debug(ctx, "session resources released")
}

// ---- Inputs ----

// OnPosition submits a geolocation fix. Invalid fixes are dropped.
func (e *Engine) OnPosition(ctx context.Context, fix core.Fix) error {
	return e.send(ctx, func(ctx context.Context) { e.handlePosition(ctx, fix) })
}

// OnLocationDenied records that the geolocation source refused access.
func (e *Engine) OnLocationDenied(ctx context.Context, err error) error {
	return e.send(ctx, func(ctx context.Context) {
		e.locationDenied = true
		e.log.Warn(ctx, "location unavailable", logging.Err(err))
		e.notify(Notification{Kind: NotifyLocationDenied, Err: err})
	})
}

// OnHeading submits a compass heading in degrees clockwise from north.
func (e *Engine) OnHeading(ctx context.Context, deg float64) error {
	return e.send(ctx, func(ctx context.Context) {
		if e.aligner.OnHeading(deg) {
			e.log.Info(ctx, "orientation aligned", logging.Float64("heading_deg", deg))
		}
	})
}

// OnHeadingUnavailable records that no heading source exists.
func (e *Engine) OnHeadingUnavailable(ctx context.Context) error {
	return e.send(ctx, func(ctx context.Context) {
		e.aligner.MarkUnavailable()
		e.notify(Notification{Kind: NotifyAlignmentDegraded, Err: core.ErrHeadingUnavailable})
	})
}

// OnFrame submits the camera pose for a rendered frame. It never blocks;
// when the loop is busy only the latest pose is kept.
func (e *Engine) OnFrame(pose core.CameraPose) {
	for {
		select {
		case e.frames <- pose:
			return
		default:
		}
		select {
		case <-e.frames:
		default:
		}
	}
}

// ---- Commands ----

// BeginDrafting freezes the reticle for fine adjustment.
func (e *Engine) BeginDrafting(ctx context.Context) error {
	return e.call(ctx, func(context.Context) error { return e.reticle.BeginDrafting() })
}

// Move shifts the drafting reticle one grid step along axis.
func (e *Engine) Move(ctx context.Context, axis core.Axis, dir int) error {
	return e.call(ctx, func(context.Context) error { return e.reticle.Move(axis, dir) })
}

// Cancel leaves drafting without placing anything.
func (e *Engine) Cancel(ctx context.Context) error {
	return e.call(ctx, func(context.Context) error {
		e.reticle.Cancel()
		return nil
	})
}

// Confirm toggles the voxel at the reticle: it creates one on an empty
// cell, removes the caller's own voxel, and rejects other owners' voxels
// with core.ErrNotOwner. Local effects are applied before it returns; the
// store call completes asynchronously.
func (e *Engine) Confirm(ctx context.Context) (core.Decision, error) {
	var decision core.Decision
	err := e.call(ctx, func(ctx context.Context) error {
		d, err := e.confirm(ctx)
		decision = d
		return err
	})
	return decision, err
}

// Recenter replaces the origin with the latest fix and rebuilds every local
// position. It returns core.ErrNoFix when no fix has been seen.
func (e *Engine) Recenter(ctx context.Context) error {
	return e.call(ctx, e.recenter)
}

// RequestAlignment asks req for orientation permission, then waits for the
// first heading. It must be triggered by a user gesture. Failure leaves the
// session usable but unaligned.
func (e *Engine) RequestAlignment(ctx context.Context, req core.PermissionRequester) error {
	var grant error
	if req != nil {
		grant = req.RequestOrientationPermission(ctx)
	}
	return e.call(ctx, func(ctx context.Context) error {
		err := e.aligner.Request(ctx, permissionResult{err: grant})
		if err != nil {
			e.log.Warn(ctx, "orientation alignment degraded", logging.Err(err))
			e.notify(Notification{Kind: NotifyAlignmentDegraded, Err: err})
		}
		return err
	})
}

// Realign discards the current yaw and applies the next heading.
func (e *Engine) Realign(ctx context.Context) error {
	return e.call(ctx, func(context.Context) error {
		e.aligner.Realign()
		return nil
	})
}

// ---- Reads ----

// Entities returns a snapshot of the locally-known entities, pending ones
// included under their temporary ids.
func (e *Engine) Entities() []model.PlacedEntity { return e.index.Entities() }

// Count returns the number of locally-known entities.
func (e *Engine) Count() int { return e.index.Len() }

// Subscribe registers for index events, e.g. to drive a count badge.
func (e *Engine) Subscribe(fn func(index.Event)) (unsubscribe func()) {
	return e.index.Subscribe(fn)
}

// Status returns the latest session snapshot.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Notifications delivers user-visible, non-fatal errors. Notifications are
// dropped when nobody drains the channel.
func (e *Engine) Notifications() <-chan Notification { return e.notes }

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// ---- Loop handlers ----

func (e *Engine) handlePosition(ctx context.Context, fix core.Fix) {
	established, err := e.origins.Observe(fix)
	if err != nil {
		e.log.Debug(ctx, "position fix rejected", logging.Err(err))
		return
	}
	e.locationDenied = false
	if established {
		origin, _ := e.origins.Origin()
		e.anchor = e.cameraAnchor()
		e.sync.SetOrigin(origin)
		e.log.Info(ctx, "origin established",
			logging.Float64("lat", origin.Lat),
			logging.Float64("lng", origin.Lng),
			logging.Bool("alt_baseline", origin.HasAltBaseline),
		)
	}
	if drift, ok := e.origins.Drift(); ok {
		e.metrics.SetOriginDrift(drift)
	}
	if box, changed := e.view.Update(fix.Point()); changed {
		e.applyBox(ctx, box)
	}
}

func (e *Engine) handleFrame(pose core.CameraPose) {
	e.camera = pose
	e.hasCamera = true

	ready := e.origins.Ready()
	frame := e.frame()
	e.reticle.Update(pose, frame, ready)
	if !ready {
		return
	}
	cam := frame.ToLocal(pose.Position)
	e.index.ApplyVisibility(func(en index.Entry) bool {
		return core.WithinDistance(cam, en.Local, e.cfg.MaxVisibleDistance)
	})
}

func (e *Engine) confirm(ctx context.Context) (core.Decision, error) {
	target, err := e.reticle.ConfirmTarget()
	if err != nil {
		return core.DecisionReject, err
	}
	defer e.reticle.FinishConfirm()

	var occupant *core.Occupant
	if en, ok := e.index.FindNear(target); ok {
		occupant = &core.Occupant{EntityID: en.EntityID, OwnerID: en.Entity.OwnerID}
	}
	decision, err := core.Decide(occupant, e.cfg.OwnerID)
	switch decision {
	case core.DecisionCreate:
		op, err := e.sync.BeginCreate(target, e.cfg.Color)
		if err != nil {
			return core.DecisionReject, err
		}
		e.log.Debug(ctx, "placement issued", logging.String("temp_id", op.TempID))
		e.dispatch(ctx, op)
	case core.DecisionRemove:
		op, issue, err := e.sync.BeginRemove(occupant.EntityID)
		if err != nil {
			return core.DecisionReject, err
		}
		if issue {
			e.dispatch(ctx, op)
		}
	default:
		e.notify(Notification{Kind: NotifyNotOwner, EntityID: occupant.EntityID, Err: err})
	}
	return decision, err
}

func (e *Engine) recenter(ctx context.Context) error {
	prev, next, err := e.origins.Recenter()
	if err != nil {
		e.notify(Notification{Kind: NotifyNoFix, Err: err})
		return err
	}
	e.anchor = e.cameraAnchor()
	e.reticle.Hide()
	e.sync.Rebuild(ctx, next)
	e.view.Reset()
	box, _ := e.view.Update(next.Point())
	e.applyBox(ctx, box)
	e.metrics.IncRecenter()
	e.log.Info(ctx, "origin recentered",
		logging.Float64("shift_m", core.GroundDistance(prev.Point(), next.Point())),
		logging.Int("entities", e.index.Len()),
	)
	return nil
}

func (e *Engine) applyBox(ctx context.Context, box model.BoundingBox) {
	e.sync.SetBox(box)
	if evicted := e.sync.EvictOutside(); len(evicted) > 0 {
		e.log.Debug(ctx, "evicted entities outside view", logging.Int("count", len(evicted)))
	}
	e.restartFeed(ctx)
}

func (e *Engine) handleResult(ctx context.Context, res OpResult) {
	switch res.Op.Kind {
	case OpCreate:
		follow, issue, err := e.sync.CompleteCreate(ctx, res)
		if err != nil {
			e.log.Warn(ctx, "placement rolled back", logging.String("temp_id", res.Op.TempID), logging.Err(err))
			e.notify(Notification{Kind: NotifyCreateFailed, EntityID: res.Op.TempID, Err: err})
		}
		if issue {
			e.dispatch(ctx, follow)
		}
	case OpDelete:
		if err := e.sync.CompleteDelete(ctx, res); err != nil {
			e.log.Warn(ctx, "removal rolled back", logging.String("entity_id", res.Op.ID), logging.Err(err))
			e.notify(Notification{Kind: NotifyDeleteFailed, EntityID: res.Op.ID, Err: err})
		}
	}
}

func (e *Engine) handleFeed(ctx context.Context, msg feedMsg) {
	if msg.gen != e.feedGen {
		return
	}
	switch msg.kind {
	case feedSnapshot:
		e.feedConnected = true
		inserted, pruned := e.sync.Hydrate(ctx, msg.entities)
		e.log.Debug(ctx, "hydrated from store",
			logging.Int("fetched", len(msg.entities)),
			logging.Int("inserted", inserted),
			logging.Int("pruned", pruned),
		)
	case feedChange:
		e.sync.ApplyChange(ctx, msg.change)
	case feedClosed:
		e.feedConnected = false
		if ctx.Err() != nil {
			return
		}
		e.log.Warn(ctx, "change feed lost; resubscribing",
			logging.Err(msg.err),
			logging.Any("retry_in", e.cfg.FeedRetryDelay),
		)
		e.notify(Notification{Kind: NotifyFeedLost, Err: msg.err})
		e.scheduleResubscribe(msg.gen)
	}
}

// ---- Store plumbing ----

// dispatch runs op against the store off the loop and posts the result
// back.
func (e *Engine) dispatch(ctx context.Context, op Op) {
	go func() {
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()
		opCtx, span := observability.StartSpan(opCtx, "store."+op.Kind.String(),
			attribute.String("temp_id", op.TempID),
			attribute.String("entity_id", op.ID),
		)

		start := time.Now()
		res := OpResult{Op: op}
		switch op.Kind {
		case OpCreate:
			ent := op.Entity
			ent.ID = ""
			res.ID, res.Err = e.store.Insert(opCtx, ent)
		case OpDelete:
			res.ID = op.ID
			res.Err = e.store.Delete(opCtx, op.ID, e.cfg.OwnerID)
		}
		e.metrics.ObserveStoreOp(op.Kind.String(), time.Since(start), res.Err)
		observability.EndSpan(span, res.Err)

		select {
		case e.results <- res:
		case <-e.done:
		}
	}()
}

func (e *Engine) restartFeed(ctx context.Context) {
	if e.feedCancel != nil {
		e.feedCancel()
	}
	if e.retry != nil {
		e.retry.Stop()
	}
	e.feedGen++
	e.feedConnected = false
	fctx, cancel := context.WithCancel(ctx)
	e.feedCancel = cancel
	go e.runFeed(fctx, e.feedGen, e.sync.Box())
}

// runFeed subscribes before fetching so no change between the two is lost;
// changes are forwarded only after the snapshot so hydration sees them in
// order.
func (e *Engine) runFeed(ctx context.Context, gen int, box model.BoundingBox) {
	send := func(m feedMsg) bool {
		m.gen = gen
		select {
		case e.feed <- m:
			return true
		case <-ctx.Done():
			return false
		case <-e.done:
			return false
		}
	}

	ch, err := e.store.Watch(ctx, box)
	if err != nil {
		send(feedMsg{kind: feedClosed, err: err})
		return
	}

	listCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	listCtx, span := observability.StartSpan(listCtx, "store.list")
	start := time.Now()
	entities, err := e.store.List(listCtx, box)
	e.metrics.ObserveStoreOp("list", time.Since(start), err)
	observability.EndSpan(span, err)
	cancel()
	if err != nil {
		send(feedMsg{kind: feedClosed, err: err})
		return
	}
	if !send(feedMsg{kind: feedSnapshot, entities: entities}) {
		return
	}

	for {
		select {
		case c, ok := <-ch:
			if !ok {
				send(feedMsg{kind: feedClosed, err: errFeedClosed})
				return
			}
			if !send(feedMsg{kind: feedChange, change: c}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) scheduleResubscribe(gen int) {
	if e.retry != nil {
		e.retry.Stop()
	}
	e.retry = time.AfterFunc(e.cfg.FeedRetryDelay, func() {
		_ = e.send(context.Background(), func(ctx context.Context) {
			if gen == e.feedGen && !e.feedConnected {
				e.restartFeed(ctx)
			}
		})
	})
}

// ---- Helpers ----

func (e *Engine) frame() core.LocalFrame {
	return core.LocalFrame{Anchor: e.anchor, Aligner: e.aligner}
}

// cameraAnchor is where the device stands when an origin is taken. Height
// stays in world space; altitude is carried by the origin baseline.
func (e *Engine) cameraAnchor() r3.Vec {
	if !e.hasCamera {
		return r3.Vec{}
	}
	return r3.Vec{X: e.camera.Position.X, Z: e.camera.Position.Z}
}

// send posts fn to the loop without waiting for it to run.
func (e *Engine) send(ctx context.Context, fn func(context.Context)) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.cmds <- fn:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for its result. Status reflects fn's
// effects by the time call returns.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	err := e.send(ctx, func(lctx context.Context) {
		err := fn(lctx)
		e.publishStatus()
		reply <- err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) notify(n Notification) {
	select {
	case e.notes <- n:
	default:
		e.log.Warn(context.Background(), "notification dropped", logging.String("kind", n.Kind.String()))
	}
}

func (e *Engine) publishStatus() {
	origin, ready := e.origins.Origin()
	target, visible := e.reticle.Target()
	st := Status{
		OriginReady:       ready,
		Origin:            origin,
		LocationDenied:    e.locationDenied,
		Alignment:         e.aligner.State(),
		AlignmentDegraded: e.aligner.State().Degraded(),
		Yaw:               e.aligner.Yaw(),
		Anchor:            e.anchor,
		Reticle:           e.reticle.State(),
		ReticleVisible:    visible,
		Target:            target,
		Entities:          e.index.Len(),
		Visible:           e.index.VisibleCount(),
		Pending:           e.sync.PendingCount(),
		FeedConnected:     e.feedConnected,
		Box:               e.sync.Box(),
	}
	e.metrics.SetIndexSize(st.Entities, st.Visible)

	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}

type permissionResult struct{ err error }

func (p permissionResult) RequestOrientationPermission(context.Context) error { return p.err }
