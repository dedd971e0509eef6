// Package gstengine runs the pipeline on GStreamer through go-gst.
//
// Elements are created by factory name, linked one by one, and the bus is
// polled for end-of-stream and error messages. Buffer probes convert the
// DeepStream batch metadata attached to each buffer into meta.Batch values
// before handing them to the probe callback.
package gstengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/caps"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/nvds"
)

// busPoll is how long Next waits on the bus before checking ctx again.
const busPoll = 50 * time.Millisecond

// BatchReader turns the GstBuffer behind buf into batch metadata.
type BatchReader func(buf unsafe.Pointer) (*meta.Batch, error)

// Stats are the engine's probe counters.
type Stats struct {
	Buffers    uint64
	ReadErrors uint64
}

// Engine is an engine.Engine backed by a GStreamer pipeline.
type Engine struct {
	pipeline *gst.Pipeline
	reader   BatchReader

	mu      sync.Mutex
	playing bool

	buffers    atomic.Uint64
	readErrors atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchReader replaces the DeepStream metadata reader.
func WithBatchReader(r BatchReader) Option {
	return func(e *Engine) { e.reader = r }
}

// New initializes GStreamer and creates an empty pipeline.
func New(name string, opts ...Option) (*Engine, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("gstengine: failed to create pipeline: %w", err)
	}

	e := &Engine{pipeline: pipeline, reader: nvds.ReadBatch}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type element struct {
	el      *gst.Element
	factory string
}

func (e *element) Name() string    { return e.el.GetName() }
func (e *element) Factory() string { return e.factory }

// SetProperty assigns a property, converting contracts to GstCaps and Go
// ints to the unsigned or 64-bit type the property declares.
func (e *element) SetProperty(key string, value any) error {
	typ, err := e.el.GetPropertyType(key)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %v", engine.ErrUnknownProperty, key, e.factory, err)
	}

	switch v := value.(type) {
	case caps.Contract:
		value = gst.NewCapsFromString(v.String())
	case int:
		switch typ {
		case glib.TYPE_UINT:
			if v < 0 {
				return fmt.Errorf("gstengine: %s=%d: property is unsigned", key, v)
			}
			value = uint(v)
		case glib.TYPE_UINT64:
			value = uint64(v)
		case glib.TYPE_INT64:
			value = int64(v)
		}
	}

	if err := e.el.SetProperty(key, value); err != nil {
		return fmt.Errorf("gstengine: set %s on %q: %w", key, e.Name(), err)
	}
	return nil
}

type slot struct {
	pad   *gst.Pad
	owner *element
}

func (s *slot) Name() string          { return s.pad.GetName() }
func (s *slot) Owner() engine.Element { return s.owner }

func (e *Engine) CreateElement(factory, name string) (engine.Element, error) {
	el, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", engine.ErrNoSuchFactory, factory, err)
	}
	if err := e.pipeline.Add(el); err != nil {
		return nil, fmt.Errorf("gstengine: add %q to pipeline: %w", name, err)
	}
	return &element{el: el, factory: factory}, nil
}

func (e *Engine) Link(up, down engine.Element) error {
	u, d, err := unwrap2(up, down)
	if err != nil {
		return err
	}
	if err := u.el.Link(d.el); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrLinkRefused, err)
	}
	return nil
}

func (e *Engine) RequestSlot(junction engine.Element, name string) (engine.Slot, error) {
	j, err := unwrap(junction)
	if err != nil {
		return nil, err
	}
	pad := j.el.GetRequestPad(name)
	if pad == nil {
		return nil, fmt.Errorf("%w: %s on %q", engine.ErrSlotRefused, name, j.Name())
	}
	return &slot{pad: pad, owner: j}, nil
}

func (e *Engine) ReleaseSlot(s engine.Slot) error {
	sl, ok := s.(*slot)
	if !ok {
		return fmt.Errorf("gstengine: foreign slot %T", s)
	}
	sl.owner.el.ReleaseRequestPad(sl.pad)
	return nil
}

func (e *Engine) LinkSlot(up engine.Element, s engine.Slot) error {
	u, err := unwrap(up)
	if err != nil {
		return err
	}
	sl, ok := s.(*slot)
	if !ok {
		return fmt.Errorf("gstengine: foreign slot %T", s)
	}

	src := u.el.GetStaticPad("src")
	if src == nil {
		return fmt.Errorf("%w: %q has no src pad", engine.ErrLinkRefused, u.Name())
	}
	if ret := src.Link(sl.pad); ret != gst.PadLinkOK {
		return fmt.Errorf("%w: %s.src → %s.%s: %v", engine.ErrLinkRefused, u.Name(), sl.owner.Name(), sl.Name(), ret)
	}
	return nil
}

// AddProbe installs a buffer probe on the named static pad. Buffers without
// batch metadata are passed through and counted as read errors.
func (e *Engine) AddProbe(el engine.Element, pad string, fn engine.ProbeFunc) error {
	x, err := unwrap(el)
	if err != nil {
		return err
	}
	p := x.el.GetStaticPad(pad)
	if p == nil {
		return fmt.Errorf("gstengine: %q has no %s pad", x.Name(), pad)
	}

	p.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buffer := info.GetBuffer()
		if buffer == nil {
			return gst.PadProbeOK
		}
		e.buffers.Add(1)

		batch, err := e.reader(unsafe.Pointer(buffer.Instance()))
		if err != nil {
			if e.readErrors.Add(1) == 1 {
				slog.Warn("gstengine: no batch metadata on buffer", "element", x.Name(), "error", err)
			}
			return gst.PadProbeOK
		}
		fn(batch)
		return gst.PadProbeOK
	})

	slog.Debug("gstengine: buffer probe installed", "element", x.Name(), "pad", pad)
	return nil
}

func (e *Engine) Remove(el engine.Element) error {
	x, err := unwrap(el)
	if err != nil {
		return err
	}
	if err := x.el.SetState(gst.StateNull); err != nil {
		slog.Debug("gstengine: element did not reach NULL before removal", "element", x.Name(), "error", err)
	}
	if err := e.pipeline.Remove(x.el); err != nil {
		return fmt.Errorf("gstengine: remove %q: %w", x.Name(), err)
	}
	return nil
}

func (e *Engine) Start() error {
	if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstengine: failed to start pipeline: %w", err)
	}
	e.mu.Lock()
	e.playing = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) SendEOS() error {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if !playing {
		return engine.ErrNotPlaying
	}
	if !e.pipeline.SendEvent(gst.NewEOSEvent()) {
		return errors.New("gstengine: pipeline refused EOS event")
	}
	return nil
}

// Next polls the bus until end-of-stream, an error message or ctx is done.
func (e *Engine) Next(ctx context.Context) (engine.Event, error) {
	bus := e.pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return engine.Event{}, ctx.Err()
		default:
		}

		msg := bus.TimedPop(busPoll)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return engine.Event{Kind: engine.EventEOS, Source: msg.Source()}, nil

		case gst.MessageError:
			gerr := msg.ParseError()
			return engine.Event{
				Kind:   engine.EventError,
				Source: msg.Source(),
				Err:    errors.New(gerr.Error()),
				Debug:  gerr.DebugString(),
			}, nil

		case gst.MessageStateChanged:
			if msg.Source() == e.pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				slog.Debug("gstengine: pipeline state changed", "from", old, "to", next)
			}
		}
	}
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()

	if err := e.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstengine: failed to stop pipeline: %w", err)
	}
	return nil
}

// Stats returns the probe counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Buffers:    e.buffers.Load(),
		ReadErrors: e.readErrors.Load(),
	}
}

func unwrap(el engine.Element) (*element, error) {
	x, ok := el.(*element)
	if !ok {
		return nil, fmt.Errorf("gstengine: foreign element %T", el)
	}
	return x, nil
}

func unwrap2(a, b engine.Element) (*element, *element, error) {
	x, err := unwrap(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := unwrap(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

var _ engine.Engine = (*Engine)(nil)
