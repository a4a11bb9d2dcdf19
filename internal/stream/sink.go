// Network stream sinks: GStreamer encoder pipelines and JPEG over WebSocket
package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultDescriptor encodes H.264 and publishes to a local RTSP server.
const DefaultDescriptor = "appsrc ! videoconvert ! videoscale ! video/x-raw " +
	"! x264enc speed-preset=veryfast tune=zerolatency bitrate=800 " +
	"! video/x-h264,profile=baseline " +
	"! rtspclientsink location=rtsp://localhost:8554/mystream"

// DefaultFPS is used when the camera does not report a frame rate.
const DefaultFPS = 30.0

const defaultWriteTimeout = 2 * time.Second

// Sink transmits frames. Write must not retain or modify the frame.
type Sink interface {
	Write(frame gocv.Mat) error
	Close() error
}

// Target is the frame geometry the sink is opened for
type Target struct {
	Width  int
	Height int
	FPS    float64
}

// Options tune sink behaviour
type Options struct {
	WriteTimeout time.Duration
}

// OpenError means the encoder or transport could not be initialized.
type OpenError struct {
	Descriptor string
	Err        error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open stream %q: %v", e.Descriptor, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// WriteError is a failed transmission of one frame. The frame is dropped.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("stream write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsWebSocket reports whether descriptor addresses a WebSocket endpoint
func IsWebSocket(descriptor string) bool {
	lower := strings.ToLower(strings.TrimSpace(descriptor))
	return strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}

// Open selects a sink implementation from the descriptor. WebSocket URLs
// get the JPEG sink; anything else is handed to OpenCV as a GStreamer pipeline.
func Open(descriptor string, target Target, opts Options, logger logrus.FieldLogger) (Sink, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return nil, &OpenError{Descriptor: descriptor, Err: fmt.Errorf("empty descriptor")}
	}
	if target.Width <= 0 || target.Height <= 0 {
		return nil, &OpenError{
			Descriptor: descriptor,
			Err:        fmt.Errorf("invalid target size %dx%d", target.Width, target.Height),
		}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	if IsWebSocket(descriptor) {
		sink, err := OpenWebSocket(descriptor, opts, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}

	sink, err := OpenGStreamer(descriptor, target, logger)
	if err != nil {
		return nil, err
	}
	return sink, nil
}
