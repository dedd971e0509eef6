package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
)

// Step declares one stage of a Plan.
//
// A KindFormatFilter step is built from Contract. A KindJunction step
// requests Slot on the new junction and links the previous stage into it.
type Step struct {
	Kind     StageKind
	Factory  string
	Name     string
	Contract string
	Slot     string
	Props    []Prop
	// Configure runs once the stage is created and linked.
	Configure func(el engine.Element) error
	// Probe names the pad of this stage that receives the plan's probe.
	Probe string
}

// Plan is the declared shape of a graph: every step feeds the next.
type Plan struct {
	Name    string
	Variant Variant
	Steps   []Step
}

// StepIndex returns the index of the step named name, or -1.
func (p Plan) StepIndex(name string) int {
	for i, s := range p.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// WithContract returns a copy of p with a format filter inserted right
// after the step named after.
func (p Plan) WithContract(after, name, contract string) (Plan, error) {
	i := p.StepIndex(after)
	if i < 0 {
		return Plan{}, fmt.Errorf("graph: plan %s has no step %q", p.Name, after)
	}

	steps := make([]Step, 0, len(p.Steps)+1)
	steps = append(steps, p.Steps[:i+1]...)
	steps = append(steps, Step{Kind: KindFormatFilter, Name: name, Contract: contract})
	steps = append(steps, p.Steps[i+1:]...)
	p.Steps = steps
	return p, nil
}

// Build runs plan on eng and installs probe where the plan asks for it.
//
// The first failure stops the build, every stage created so far is removed
// and a single *BuildError is returned. A partial graph is never returned.
func Build(eng engine.Engine, plan Plan, probe engine.ProbeFunc) (*Graph, error) {
	b := NewBuilder(eng)

	var prev *Stage
	for _, step := range plan.Steps {
		s, err := b.apply(step, prev, probe)
		if err != nil {
			return nil, b.fail(plan, step.Name, err)
		}
		prev = s
	}

	g, err := b.Finish()
	if err != nil {
		return nil, b.fail(plan, "", err)
	}

	slog.Info("graph: pipeline built",
		"plan", plan.Name,
		"variant", plan.Variant.String(),
		"stages", len(g.stages),
	)
	return g, nil
}

func (b *Builder) apply(step Step, prev *Stage, probe engine.ProbeFunc) (*Stage, error) {
	var (
		s   *Stage
		err error
	)

	switch step.Kind {
	case KindFormatFilter:
		s, err = b.AddFormatContract(step.Contract, step.Name, prev)
	case KindJunction:
		s, err = b.AddStage(step.Kind, step.Factory, step.Name, nil, step.Props...)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, fmt.Errorf("%w: junction %q has nothing to fan in", ErrUnlinked, s.Name)
		}
		slot, err := b.RequestInputSlot(s, step.Slot)
		if err != nil {
			return nil, err
		}
		if err := b.LinkExplicit(prev, slot); err != nil {
			return nil, err
		}
	default:
		s, err = b.AddStage(step.Kind, step.Factory, step.Name, prev, step.Props...)
	}
	if err != nil {
		return nil, err
	}

	if step.Configure != nil {
		if err := step.Configure(s.Element); err != nil {
			return nil, err
		}
	}
	if step.Probe != "" && probe != nil {
		if err := b.AddProbe(s, step.Probe, probe); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (b *Builder) fail(plan Plan, stage string, cause error) error {
	slog.Error("graph: build failed, removing created stages",
		"plan", plan.Name,
		"stage", stage,
		"error", cause,
	)
	return &BuildError{Plan: plan.Name, Stage: stage, Err: errors.Join(cause, b.Abort())}
}
