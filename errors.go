package detectionpipeline

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
)

// ErrInvalidTransition is returned when an operation is called in a state
// that does not allow it.
var ErrInvalidTransition = errors.New("detection-pipeline: invalid state transition")

func invalidTransition(op string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}

// EngineError is the single summarized error of a run ended by the engine.
type EngineError struct {
	Category engine.ErrorCategory
	Source   string // element that reported the error
	Message  string
	Debug    string
	Err      error
}

func newEngineError(ev engine.Event) *EngineError {
	msg := "unknown engine error"
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	return &EngineError{
		Category: engine.ClassifyError(msg, ev.Debug),
		Source:   ev.Source,
		Message:  msg,
		Debug:    ev.Debug,
		Err:      ev.Err,
	}
}

func (e *EngineError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("detection-pipeline: %s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("detection-pipeline: %s error from element %s: %s", e.Category, e.Source, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
