package detectionpipeline

import (
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/aggregator"
)

// State is the lifecycle state of a Controller.
type State int

const (
	// StateUnconfigured is the initial state and the state after a failed Build.
	StateUnconfigured State = iota
	// StateBuilt means every stage exists and is linked.
	StateBuilt
	// StateRunning means the engine is playing.
	StateRunning
	// StateStoppedEOS means the run ended with end-of-stream.
	StateStoppedEOS
	// StateStoppedError means the run ended with a fatal engine error.
	StateStoppedError
	// StateTornDown means every stage has been released.
	StateTornDown
)

// String returns a human-readable name of the state
func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	case StateStoppedEOS:
		return "stopped(eos)"
	case StateStoppedError:
		return "stopped(error)"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// Stopped reports whether s is one of the stopped states.
func (s State) Stopped() bool {
	return s == StateStoppedEOS || s == StateStoppedError
}

// StopReason is why a run ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopEOS
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopEOS:
		return "eos"
	case StopError:
		return "error"
	default:
		return "none"
	}
}

// Stats is a snapshot of a run.
type Stats struct {
	RunID string
	State State

	// Frames is the run counter value. It keeps its last value after
	// Teardown releases the counter.
	Frames int

	Aggregator aggregator.Stats
}
