// Package aggregator is the per-frame probe of the detection pipeline.
//
// For every batch reaching the on-screen display it walks each frame's
// objects, counts the people and vehicles, attaches a text overlay with
// the counts and emits one diagnostic line per frame. It runs on the
// engine's streaming thread: all work is synchronous and bounded, and the
// only state shared between calls is atomic.
package aggregator

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

// Class ids produced by the primary detector.
const (
	ClassVehicle    = 0
	ClassTwoWheeler = 1
	ClassPerson     = 2
	ClassRoadsign   = 3
)

// MaxDisplayLen is the size of the renderer's text buffer, terminator
// included.
const MaxDisplayLen = 64

// Category is a counted object class.
type Category struct {
	Name    string
	ClassID int
}

// Categories are the counted classes in display order.
var Categories = []Category{
	{Name: "Person", ClassID: ClassPerson},
	{Name: "Vehicle", ClassID: ClassVehicle},
}

// Overlay placement and style.
var (
	OverlayX    = 10
	OverlayY    = 12
	OverlayFont = meta.Font{Name: "Serif", Size: 10, Color: meta.White}
)

// CategoryCount is the number of objects of one category in a frame.
type CategoryCount struct {
	Name  string
	Count int
}

// FrameSummary is the outcome of processing one frame.
type FrameSummary struct {
	RunFrame int // run counter value before this frame
	SourceID uint32
	FrameNum int
	Total    int // counted objects only
	Counts   []CategoryCount
	Overlay  string
	Attached bool
}

// Count returns the count for the named category.
func (s FrameSummary) Count(name string) int {
	for _, c := range s.Counts {
		if c.Name == name {
			return c.Count
		}
	}
	return 0
}

// String renders the per-frame diagnostic line.
func (s FrameSummary) String() string {
	var b strings.Builder
	b.WriteString("Frame Number = ")
	b.WriteString(strconv.Itoa(s.RunFrame))
	b.WriteString(" Number of objects = ")
	b.WriteString(strconv.Itoa(s.Total))
	for _, c := range s.Counts {
		fmt.Fprintf(&b, " %s Count = %d", c.Name, c.Count)
	}
	return b.String()
}

// Publisher receives every frame summary. Publish must not block.
type Publisher interface {
	Publish(FrameSummary)
}

// Stats is a snapshot of the aggregator's counters.
type Stats struct {
	Frames             uint64
	OverlaysAttached   uint64
	AllocationFailures uint64
	AttachErrors       uint64
}

// Aggregator counts objects per frame and annotates frames with overlays.
type Aggregator struct {
	counter *RunCounter
	logger  *slog.Logger
	publish Publisher

	frames        atomic.Uint64
	overlays      atomic.Uint64
	allocFailures atomic.Uint64
	attachErrors  atomic.Uint64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for diagnostic lines.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithPublisher forwards every frame summary to p.
func WithPublisher(p Publisher) Option {
	return func(a *Aggregator) { a.publish = p }
}

// New returns an aggregator that advances counter once per frame.
func New(counter *RunCounter, opts ...Option) *Aggregator {
	a := &Aggregator{
		counter: counter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe processes batch and discards the summaries. Its signature fits
// the engine's probe callback.
func (a *Aggregator) Observe(batch *meta.Batch) {
	a.Process(batch)
}

// Process handles every frame of batch in order.
//
// For each frame it:
//  1. Counts the objects of each category
//  2. Attaches the count overlay (skipped, not fatal, if attaching fails)
//  3. Advances the run counter
//  4. Logs the diagnostic line and publishes the summary
func (a *Aggregator) Process(batch *meta.Batch) []FrameSummary {
	if batch == nil || len(batch.Frames) == 0 {
		return nil
	}

	out := make([]FrameSummary, 0, len(batch.Frames))
	for _, frame := range batch.Frames {
		out = append(out, a.processFrame(frame))
	}
	return out
}

func (a *Aggregator) processFrame(frame *meta.Frame) FrameSummary {
	counts, total := Count(frame.Objects)

	s := FrameSummary{
		SourceID: frame.SourceID,
		FrameNum: frame.FrameNum,
		Total:    total,
		Counts:   counts,
		Overlay:  OverlayText(counts, MaxDisplayLen-1),
	}

	if s.Overlay != "" {
		bg := meta.Black
		err := frame.Attach(meta.Overlay{
			Text:       s.Overlay,
			X:          OverlayX,
			Y:          OverlayY,
			Font:       OverlayFont,
			Background: &bg,
		})
		switch {
		case err == nil:
			s.Attached = true
			a.overlays.Add(1)
		case errors.Is(err, meta.ErrAllocationFailure):
			a.allocFailures.Add(1)
			a.logger.Warn("aggregator: overlay allocation failed, frame left unannotated",
				"source_id", frame.SourceID,
				"frame_num", frame.FrameNum,
			)
		default:
			a.attachErrors.Add(1)
			a.logger.Error("aggregator: failed to attach overlay",
				"source_id", frame.SourceID,
				"frame_num", frame.FrameNum,
				"error", err,
			)
		}
	}

	s.RunFrame = a.counter.Next()
	a.frames.Add(1)

	a.logger.Info(s.String(), "source_id", s.SourceID, "attached", s.Attached)

	if a.publish != nil {
		a.publish.Publish(s)
	}
	return s
}

// Stats returns the current counters.
func (a *Aggregator) Stats() Stats {
	return Stats{
		Frames:             a.frames.Load(),
		OverlaysAttached:   a.overlays.Load(),
		AllocationFailures: a.allocFailures.Load(),
		AttachErrors:       a.attachErrors.Load(),
	}
}

// Count classifies objects into Categories. Objects of other classes are
// left out of both the per-category counts and the total.
func Count(objects []meta.Object) ([]CategoryCount, int) {
	counts := make([]CategoryCount, len(Categories))
	for i, c := range Categories {
		counts[i].Name = c.Name
	}

	total := 0
	for _, obj := range objects {
		for i, c := range Categories {
			if obj.ClassID == c.ClassID {
				counts[i].Count++
				total++
				break
			}
		}
	}
	return counts, total
}

// OverlayText renders counts as "Person = 1 Vehicle = 2 ". The result is
// at most limit bytes: a field that does not fit is dropped whole, together
// with every field after it.
func OverlayText(counts []CategoryCount, limit int) string {
	var b strings.Builder
	for _, c := range counts {
		field := c.Name + " = " + strconv.Itoa(c.Count) + " "
		if b.Len()+len(field) > limit {
			break
		}
		b.WriteString(field)
	}
	return b.String()
}
