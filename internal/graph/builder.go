// Package graph assembles the stage graph on an execution engine.
//
// Stages are created in declared order and linked to their predecessor as
// soon as they exist. Before any link reaches the engine, the contract the
// upstream stage emits is checked against the contract the downstream stage
// accepts; a mismatch is a LinkError, never a silent conversion. The one
// fan-in junction is linked through an explicitly requested input slot.
//
// Every operation is appended to a construction log, so a build can be
// inspected or replayed step by step.
package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/caps"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
)

// LogEntry is one construction step.
type LogEntry struct {
	Op     string // create, set, link, request-slot, link-slot, release-slot, probe, remove
	Stage  string
	Detail string
}

func (e LogEntry) String() string {
	if e.Detail == "" {
		return e.Op + " " + e.Stage
	}
	return e.Op + " " + e.Stage + ": " + e.Detail
}

// InputSlot is a requested input of a junction.
type InputSlot struct {
	Junction *Stage
	Name     string
	handle   engine.Slot
	linked   bool
}

// Builder creates and links stages on one engine. It is used from a single
// goroutine during construction.
type Builder struct {
	eng    engine.Engine
	stages []*Stage
	byName map[string]*Stage
	slots  map[*Stage]*InputSlot
	log    []LogEntry
}

// NewBuilder returns a builder for eng.
func NewBuilder(eng engine.Engine) *Builder {
	return &Builder{
		eng:    eng,
		byName: make(map[string]*Stage),
		slots:  make(map[*Stage]*InputSlot),
	}
}

// AddStage creates a stage, assigns props and links it to previous.
//
// Sources take no previous stage. Junctions are not linked here: their
// input arrives through RequestInputSlot and LinkExplicit.
func (b *Builder) AddStage(kind StageKind, factory, name string, previous *Stage, props ...Prop) (*Stage, error) {
	if _, dup := b.byName[name]; dup && name != "" {
		return nil, fmt.Errorf("graph: stage name %q already used", name)
	}

	el, err := b.eng.CreateElement(factory, name)
	if err != nil {
		return nil, fmt.Errorf("graph: create %s %q: %w", factory, name, err)
	}

	s := &Stage{
		Name:    el.Name(),
		Kind:    kind,
		Factory: factory,
		Element: el,
		props:   props,
	}
	b.stages = append(b.stages, s)
	b.byName[s.Name] = s
	b.record("create", s.Name, kind.String()+" "+factory)

	for _, p := range props {
		if err := el.SetProperty(p.Name, p.Value); err != nil {
			return nil, fmt.Errorf("graph: stage %q property %s=%v: %w", s.Name, p.Name, p.Value, err)
		}
		b.record("set", s.Name, fmt.Sprintf("%s=%v", p.Name, p.Value))
	}

	t := transferFor(factory)
	s.Accepts = t.accepts(s)

	switch kind {
	case KindSource:
		s.Emits = t.emits(s, caps.Any)
		s.linked = true
	case KindJunction:
		// Linked through its input slot.
	default:
		if previous == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnlinked, s)
		}
		if err := b.link(previous, s); err != nil {
			return nil, err
		}
	}

	slog.Debug("graph: stage added",
		"stage", s.Name,
		"kind", kind.String(),
		"factory", factory,
		"accepts", s.Accepts.String(),
	)

	return s, nil
}

// AddFormatContract creates a caps filter that pins the layout between
// previous and whatever follows.
func (b *Builder) AddFormatContract(contract, name string, previous *Stage) (*Stage, error) {
	c, err := caps.Parse(contract)
	if err != nil {
		return nil, fmt.Errorf("graph: stage %q: %w", name, err)
	}
	return b.AddStage(KindFormatFilter, "capsfilter", name, previous, Prop{Name: "caps", Value: c})
}

// RequestInputSlot requests the named input of junction. A junction has a
// single input slot; asking again fails with ErrSlotUnavailable and leaves
// the existing slot untouched.
func (b *Builder) RequestInputSlot(junction *Stage, slotName string) (*InputSlot, error) {
	if junction.Kind != KindJunction {
		return nil, fmt.Errorf("%w: %s", ErrNotJunction, junction)
	}
	if held, ok := b.slots[junction]; ok {
		return nil, fmt.Errorf("%w: %q already holds slot %s", ErrSlotUnavailable, junction.Name, held.Name)
	}

	handle, err := b.eng.RequestSlot(junction.Element, slotName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q slot %s: %v", ErrSlotUnavailable, junction.Name, slotName, err)
	}

	slot := &InputSlot{Junction: junction, Name: slotName, handle: handle}
	b.slots[junction] = slot
	b.record("request-slot", junction.Name, slotName)
	return slot, nil
}

// LinkExplicit links the output of up into slot. A refused link releases
// the slot again so nothing is left half attached.
func (b *Builder) LinkExplicit(up *Stage, slot *InputSlot) error {
	j := slot.Junction
	if slot.linked {
		return fmt.Errorf("%w: %q slot %s already linked", ErrSlotUnavailable, j.Name, slot.Name)
	}
	if b.slots[j] != slot {
		return fmt.Errorf("%w: %q slot %s was released", ErrSlotUnavailable, j.Name, slot.Name)
	}

	if err := b.checkLink(up, j); err != nil {
		b.releaseSlot(slot)
		return err
	}
	if err := b.eng.LinkSlot(up.Element, slot.handle); err != nil {
		b.releaseSlot(slot)
		return &LinkError{Up: up.Name, Down: j.Name + "." + slot.Name, Out: up.Emits, In: j.Accepts, Err: err}
	}

	slot.linked = true
	j.upstream = up
	j.linked = true
	j.Emits = transferFor(j.Factory).emits(j, up.Emits)
	b.record("link-slot", j.Name, up.Name+" → "+slot.Name)
	return nil
}

// AddProbe installs fn on the named pad of s.
func (b *Builder) AddProbe(s *Stage, pad string, fn engine.ProbeFunc) error {
	if err := b.eng.AddProbe(s.Element, pad, fn); err != nil {
		return fmt.Errorf("graph: probe on %q pad %s: %w", s.Name, pad, err)
	}
	b.record("probe", s.Name, pad)
	return nil
}

// Stage returns a created stage by name.
func (b *Builder) Stage(name string) (*Stage, bool) {
	s, ok := b.byName[name]
	return s, ok
}

// Log returns the construction log so far.
func (b *Builder) Log() []LogEntry {
	return append([]LogEntry(nil), b.log...)
}

// Finish checks that every stage has its input and hands the stages over to
// a Graph. The builder must not be used afterwards.
func (b *Builder) Finish() (*Graph, error) {
	for _, s := range b.stages {
		if !s.linked {
			return nil, fmt.Errorf("%w: %s", ErrUnlinked, s)
		}
	}

	g := &Graph{
		eng:    b.eng,
		stages: b.stages,
		byName: b.byName,
		log:    b.log,
	}
	for _, slot := range b.slots {
		g.slots = append(g.slots, slot.handle)
	}
	b.stages, b.slots = nil, nil
	return g, nil
}

// Abort releases every requested slot and removes every stage created so
// far, newest first.
func (b *Builder) Abort() error {
	var errs []error
	for _, slot := range b.slots {
		if err := b.eng.ReleaseSlot(slot.handle); err != nil {
			errs = append(errs, fmt.Errorf("graph: release %q slot %s: %w", slot.Junction.Name, slot.Name, err))
		}
	}
	b.slots = make(map[*Stage]*InputSlot)

	for i := len(b.stages) - 1; i >= 0; i-- {
		s := b.stages[i]
		if err := b.eng.Remove(s.Element); err != nil {
			errs = append(errs, fmt.Errorf("graph: remove %q: %w", s.Name, err))
			continue
		}
		b.record("remove", s.Name, "")
	}
	b.stages = nil
	b.byName = make(map[string]*Stage)

	return errors.Join(errs...)
}

func (b *Builder) link(up, down *Stage) error {
	if err := b.checkLink(up, down); err != nil {
		return err
	}
	if err := b.eng.Link(up.Element, down.Element); err != nil {
		return &LinkError{Up: up.Name, Down: down.Name, Out: up.Emits, In: down.Accepts, Err: err}
	}

	down.upstream = up
	down.linked = true
	down.Emits = transferFor(down.Factory).emits(down, up.Emits)
	b.record("link", down.Name, up.Name+" → "+down.Name)
	return nil
}

// checkLink validates the contracts of up → down against the fixed
// compatibility table.
func (b *Builder) checkLink(up, down *Stage) error {
	if !up.linked {
		return fmt.Errorf("%w: %s cannot feed %q yet", ErrUnlinked, up, down.Name)
	}
	if up.Kind == KindSink {
		return &LinkError{Up: up.Name, Down: down.Name, Out: up.Emits, In: down.Accepts, Reason: "sinks have no output"}
	}
	if reason := caps.Mismatch(up.Emits, down.Accepts); reason != "" {
		return &LinkError{Up: up.Name, Down: down.Name, Out: up.Emits, In: down.Accepts, Reason: reason}
	}
	return nil
}

func (b *Builder) releaseSlot(slot *InputSlot) {
	if err := b.eng.ReleaseSlot(slot.handle); err != nil {
		slog.Warn("graph: failed to release input slot",
			"stage", slot.Junction.Name,
			"slot", slot.Name,
			"error", err,
		)
	}
	delete(b.slots, slot.Junction)
	b.record("release-slot", slot.Junction.Name, slot.Name)
}

func (b *Builder) record(op, stage, detail string) {
	b.log = append(b.log, LogEntry{Op: op, Stage: stage, Detail: detail})
}
