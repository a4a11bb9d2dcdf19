package effects

import (
	"fmt"
	"sync/atomic"

	"gocv.io/x/gocv"

	"camera-effects-pipeline/internal/core"
)

// TransformError reports an effect that could not process a valid frame.
// Effects are total over valid frames, so this always indicates a bug.
type TransformError struct {
	Effect string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("effect %q failed: %v", e.Effect, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Effect is a named transform that can be switched on and off from any
// goroutine while the pipeline goroutine reads the flag once per frame.
type Effect struct {
	name      string
	transform Transform
	enabled   atomic.Bool
}

// NewEffect creates a disabled effect
func NewEffect(name string, transform Transform) *Effect {
	return &Effect{
		name:      name,
		transform: transform,
	}
}

func (e *Effect) Name() string {
	return e.name
}

func (e *Effect) Transform() Transform {
	return e.transform
}

func (e *Effect) Enabled() bool {
	return e.enabled.Load()
}

func (e *Effect) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Toggle atomically flips the enabled flag and returns the new state.
func (e *Effect) Toggle() bool {
	for {
		current := e.enabled.Load()
		if e.enabled.CompareAndSwap(current, !current) {
			return !current
		}
	}
}

// Apply runs the transform regardless of the enabled flag. Ownership of
// frame passes to the effect; the returned Mat belongs to the caller, also
// when an error is returned.
func (e *Effect) Apply(frame gocv.Mat) (gocv.Mat, error) {
	before := core.Describe(frame)

	output, err := e.transform.Apply(frame)
	if err != nil {
		return output, &TransformError{Effect: e.name, Err: err}
	}

	if err := core.ValidateFrame(output); err != nil {
		return output, &TransformError{Effect: e.name, Err: fmt.Errorf("invalid output: %w", err)}
	}

	after := core.Describe(output)
	if !e.transform.Resizes() && !before.SameSize(after) {
		return output, &TransformError{
			Effect: e.name,
			Err:    fmt.Errorf("changed frame size from %s to %s", before, after),
		}
	}

	return output, nil
}
