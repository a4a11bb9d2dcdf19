package capture

import "fmt"

// OpenError means the source could not be opened or its format negotiated.
type OpenError struct {
	Device int
	// Path is set for file sources instead of Device.
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cannot open %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("cannot open camera %d: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// CaptureError means a frame could not be acquired mid-session. The source
// is assumed gone; callers do not retry.
type CaptureError struct {
	Device int
	Path   string
	Frame  uint64
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: capture of frame %d failed: %v", e.Path, e.Frame, e.Err)
	}
	return fmt.Sprintf("camera %d: capture of frame %d failed: %v", e.Device, e.Frame, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
