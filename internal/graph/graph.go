package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
)

// Graph is a fully linked set of stages. It owns its stages until Teardown.
type Graph struct {
	eng    engine.Engine
	stages []*Stage
	byName map[string]*Stage
	slots  []engine.Slot
	log    []LogEntry
	torn   bool
}

// Stages returns the stages in construction order.
func (g *Graph) Stages() []*Stage {
	return append([]*Stage(nil), g.stages...)
}

// Stage returns a stage by name.
func (g *Graph) Stage(name string) (*Stage, bool) {
	s, ok := g.byName[name]
	return s, ok
}

// Log returns the construction log.
func (g *Graph) Log() []LogEntry {
	return append([]LogEntry(nil), g.log...)
}

// Teardown releases the junction slots and removes every stage from the
// engine, newest first. Later calls return ErrTornDown.
func (g *Graph) Teardown() error {
	if g.torn {
		return ErrTornDown
	}
	g.torn = true

	var errs []error
	for _, slot := range g.slots {
		if err := g.eng.ReleaseSlot(slot); err != nil {
			errs = append(errs, fmt.Errorf("graph: release slot %s: %w", slot.Name(), err))
		}
	}
	for i := len(g.stages) - 1; i >= 0; i-- {
		s := g.stages[i]
		if err := g.eng.Remove(s.Element); err != nil {
			errs = append(errs, fmt.Errorf("graph: remove %q: %w", s.Name, err))
		}
	}

	slog.Debug("graph: torn down", "stages", len(g.stages), "errors", len(errs))
	g.stages, g.slots = nil, nil
	g.byName = map[string]*Stage{}
	return errors.Join(errs...)
}
