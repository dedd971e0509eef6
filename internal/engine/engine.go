// Package engine is the port to the media execution engine that owns
// buffers, threads and scheduling. The pipeline core only creates, links
// and configures elements through it and waits for its bus events.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

var (
	ErrNoSuchFactory   = errors.New("engine: no such element factory")
	ErrLinkRefused     = errors.New("engine: link refused")
	ErrSlotRefused     = errors.New("engine: request slot refused")
	ErrUnknownProperty = errors.New("engine: unknown property")
	ErrNotPlaying      = errors.New("engine: pipeline not playing")
)

// Element is a stage handle owned by the engine.
type Element interface {
	Name() string
	Factory() string
	SetProperty(key string, value any) error
}

// Slot is an input pad requested on a fan-in element.
type Slot interface {
	Name() string
	Owner() Element
}

// ProbeFunc observes every batch crossing a pad. It runs on the engine's
// streaming thread and must not block.
type ProbeFunc func(batch *meta.Batch)

// EventKind classifies bus events.
type EventKind int

const (
	EventEOS EventKind = iota
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventEOS:
		return "eos"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a terminal bus message.
type Event struct {
	Kind   EventKind
	Source string // element that posted the message
	Err    error
	Debug  string
}

func (e Event) String() string {
	if e.Kind == EventError {
		return fmt.Sprintf("error from %s: %v", e.Source, e.Err)
	}
	return "end of stream"
}

// Engine creates and drives one pipeline.
type Engine interface {
	CreateElement(factory, name string) (Element, error)
	Link(up, down Element) error
	RequestSlot(junction Element, name string) (Slot, error)
	ReleaseSlot(slot Slot) error
	LinkSlot(up Element, slot Slot) error
	// AddProbe installs fn on the named static pad of el.
	AddProbe(el Element, pad string, fn ProbeFunc) error
	Remove(el Element) error

	Start() error
	// SendEOS queues an end-of-stream; the matching EventEOS arrives through
	// Next once it has drained the pipeline.
	SendEOS() error
	// Next blocks until the next terminal event or ctx is done.
	Next(ctx context.Context) (Event, error)
	// Stop moves the pipeline to its null state and releases resources.
	Stop() error
}
