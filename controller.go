package detectionpipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/aggregator"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/appconfig"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/binder"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/keyfile"
)

// Controller drives one camera pipeline through its lifecycle:
//
//	Unconfigured → Built → Running → Stopped(EOS) | Stopped(Error) → TornDown
//
// Build, Start, Wait and Teardown are called from one goroutine. ForceStop
// and Stats may be called from any goroutine.
type Controller struct {
	cfg    appconfig.Config
	eng    engine.Engine
	logger *slog.Logger
	runID  string

	publish  aggregator.Publisher
	editPlan func(graph.Plan) (graph.Plan, error)

	mu      sync.Mutex
	state   State
	graph   *graph.Graph
	counter *RunCounter
	agg     *aggregator.Aggregator
	binding *binder.Result
	frames  int // counter value kept after teardown

	eosSent atomic.Bool
}

// RunCounter is the frame counter of one run.
type RunCounter = aggregator.RunCounter

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the base logger. Every line carries the run ID.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithPublisher forwards every frame summary to p.
func WithPublisher(p aggregator.Publisher) Option {
	return func(c *Controller) { c.publish = p }
}

// WithPlanEdit lets the caller rewrite the camera plan before it is built,
// for example to insert an extra format contract.
func WithPlanEdit(fn func(graph.Plan) (graph.Plan, error)) Option {
	return func(c *Controller) { c.editPlan = fn }
}

// New returns an unconfigured controller for cfg on eng.
func New(cfg appconfig.Config, eng engine.Engine, opts ...Option) (*Controller, error) {
	if eng == nil {
		return nil, errors.New("detection-pipeline: engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:    cfg,
		eng:    eng,
		logger: slog.Default(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("run_id", c.runID)
	return c, nil
}

// RunID returns the identifier attached to every log line of this run.
func (c *Controller) RunID() string {
	return c.runID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TrackerBinding returns the result of binding the tracker config, or nil
// before a successful Build.
func (c *Controller) TrackerBinding() *binder.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding
}

// Graph returns the built graph, or nil outside Built..Stopped.
func (c *Controller) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

// Stats returns a snapshot of the run counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{RunID: c.runID, State: c.state, Frames: c.frames}
	if c.counter != nil {
		s.Frames = c.counter.Value()
	}
	if c.agg != nil {
		s.Aggregator = c.agg.Stats()
	}
	return s
}

// Build loads the tracker config and constructs the camera graph.
//
// It moves Unconfigured → Built only when every stage was created, linked
// and configured. On failure the partial graph has already been removed
// and the controller stays Unconfigured.
func (c *Controller) Build(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUnconfigured {
		return invalidTransition("build", c.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	variant, err := graph.VariantFor(c.cfg.Platform)
	if err != nil {
		return err
	}

	store, err := keyfile.Load(c.cfg.TrackerConfig)
	if err != nil {
		return fmt.Errorf("detection-pipeline: tracker config: %w", err)
	}

	counter := aggregator.NewRunCounter()
	aggOpts := []aggregator.Option{aggregator.WithLogger(c.logger)}
	if c.publish != nil {
		aggOpts = append(aggOpts, aggregator.WithPublisher(c.publish))
	}
	agg := aggregator.New(counter, aggOpts...)

	var binding *binder.Result
	plan := graph.CameraPlan(graph.CameraOptions{
		Device:             c.cfg.Device,
		CameraWidth:        c.cfg.Camera.Width,
		CameraHeight:       c.cfg.Camera.Height,
		CameraFormat:       c.cfg.Camera.Format,
		MuxerWidth:         c.cfg.Muxer.Width,
		MuxerHeight:        c.cfg.Muxer.Height,
		BatchSize:          c.cfg.Muxer.BatchSize,
		BatchedPushTimeout: c.cfg.Muxer.BatchedPushTimeoutUS,
		LiveSource:         c.cfg.Muxer.LiveSource,
		InferConfig:        c.cfg.InferConfig,
		Variant:            variant,
		ConfigureTracker: func(el engine.Element) error {
			res, err := binder.Bind(el, store, binder.TrackerGroup, binder.TrackerSetters())
			if err != nil {
				return err
			}
			binding = res
			return nil
		},
	})

	if c.editPlan != nil {
		if plan, err = c.editPlan(plan); err != nil {
			return fmt.Errorf("detection-pipeline: edit plan: %w", err)
		}
	}

	g, err := graph.Build(c.eng, plan, agg.Observe)
	if err != nil {
		c.logger.Error("detection-pipeline: build failed", "error", err)
		return err
	}

	c.graph = g
	c.counter = counter
	c.agg = agg
	c.binding = binding
	c.state = StateBuilt

	warnings := 0
	if binding != nil {
		warnings = len(binding.Warnings)
	}
	c.logger.Info("detection-pipeline: pipeline built",
		"pipeline", plan.Name,
		"variant", variant.String(),
		"stages", len(g.Stages()),
		"tracker_warnings", warnings,
	)
	return nil
}

// Start moves Built → Running. If the engine refuses to play, the run ends
// immediately in Stopped(Error) and the error is returned.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateBuilt {
		return invalidTransition("start", c.state)
	}

	c.logger.Info("Now playing", "device", c.cfg.Device)
	c.state = StateRunning

	if err := c.eng.Start(); err != nil {
		c.state = StateStoppedError
		c.logger.Error("detection-pipeline: engine failed to start", "error", err)
		return fmt.Errorf("detection-pipeline: start: %w", err)
	}

	c.logger.Info("Running...")
	return nil
}

// Wait blocks until the engine reports end-of-stream or a fatal error and
// moves Running → Stopped. It has no timeout.
//
// Cancelling ctx does not abort the wait: it queues an end-of-stream once
// and keeps waiting for the engine to drain. A fatal engine error is
// returned as *EngineError.
func (c *Controller) Wait(ctx context.Context) (StopReason, error) {
	if s := c.State(); s != StateRunning {
		return StopNone, invalidTransition("wait", s)
	}

	waitCtx := ctx
	for {
		ev, err := c.eng.Next(waitCtx)
		if err != nil {
			if waitCtx.Err() == nil {
				return c.stop(StopError, fmt.Errorf("detection-pipeline: engine event stream: %w", err))
			}
			c.logger.Info("detection-pipeline: wait cancelled, sending end-of-stream", "reason", context.Cause(waitCtx))
			if err := c.ForceStop(); err != nil {
				return c.stop(StopError, err)
			}
			waitCtx = context.WithoutCancel(ctx)
			continue
		}

		switch ev.Kind {
		case engine.EventEOS:
			c.logger.Info("End of stream")
			return c.stop(StopEOS, nil)

		case engine.EventError:
			eerr := newEngineError(ev)
			c.logger.Error(fmt.Sprintf("ERROR from element %s: %s", ev.Source, eerr.Message),
				"category", eerr.Category.String(),
			)
			if eerr.Debug != "" {
				c.logger.Error(fmt.Sprintf("Error details: %s", eerr.Debug))
			}
			return c.stop(StopError, eerr)
		}
	}
}

func (c *Controller) stop(reason StopReason, err error) (StopReason, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason == StopEOS {
		c.state = StateStoppedEOS
	} else {
		c.state = StateStoppedError
	}
	return reason, err
}

// ForceStop queues an end-of-stream on the engine. It never tears the graph
// down itself and is safe to call from a signal handler goroutine. Only the
// first call while running sends the event.
func (c *Controller) ForceStop() error {
	if s := c.State(); s != StateRunning {
		return invalidTransition("force-stop", s)
	}
	if !c.eosSent.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.eng.SendEOS(); err != nil {
		c.eosSent.Store(false)
		return fmt.Errorf("detection-pipeline: send end-of-stream: %w", err)
	}
	c.logger.Info("detection-pipeline: end-of-stream queued")
	return nil
}

// Teardown stops the engine and releases every stage. It is allowed from
// either stopped state and succeeds exactly once; later calls return
// ErrInvalidTransition.
func (c *Controller) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Stopped() {
		return invalidTransition("teardown", c.state)
	}
	c.state = StateTornDown

	c.logger.Info("Returned, stopping playback")
	var errs []error
	if err := c.eng.Stop(); err != nil {
		errs = append(errs, err)
	}

	c.logger.Info("Deleting pipeline")
	if err := c.graph.Teardown(); err != nil {
		errs = append(errs, err)
	}

	c.frames = c.counter.Value()
	c.graph = nil
	c.counter = nil

	c.logger.Info("detection-pipeline: torn down", "frames", c.frames)
	return errors.Join(errs...)
}
