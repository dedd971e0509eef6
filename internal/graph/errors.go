package graph

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/caps"
)

var (
	// ErrSlotUnavailable is returned when a junction has no free input slot.
	ErrSlotUnavailable = errors.New("graph: input slot unavailable")
	// ErrNotJunction is returned when a slot is requested on a plain stage.
	ErrNotJunction = errors.New("graph: stage is not a fan-in junction")
	// ErrUnlinked is returned when a stage has no upstream where one is required.
	ErrUnlinked = errors.New("graph: stage has no upstream link")
	// ErrTornDown is returned by a graph that was already released.
	ErrTornDown = errors.New("graph: graph already torn down")
)

// LinkError is a refused link between two stages. Out is the contract
// emitted upstream and In the contract accepted downstream.
type LinkError struct {
	Up     string
	Down   string
	Out    caps.Contract
	In     caps.Contract
	Reason string
	Err    error // engine refusal, nil when the contracts were incompatible
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("graph: cannot link %q [%s] to %q [%s]", e.Up, e.Out, e.Down, e.In)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// BuildError is the single error returned for an aborted build. Err joins
// the failure with any error met while removing the stages already created.
type BuildError struct {
	Plan  string
	Stage string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("graph: building %s failed at stage %q: %v", e.Plan, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
