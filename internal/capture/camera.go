// Camera frame source backed by an OpenCV video capture device
package capture

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects-pipeline/internal/core"
)

// Requested from the driver so it settles on the fastest mode it supports.
const fpsCeiling = 240.0

// Source produces frames for the pipeline. Next blocks until a frame is
// available; the returned Mat is owned by the caller and only valid when
// err is nil.
type Source interface {
	Next() (gocv.Mat, error)
	Geometry() Geometry
	Close() error
}

// Geometry is what the device negotiated at open time
type Geometry struct {
	Width  int
	Height int
	FPS    float64
	Format core.PixelFormat
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d@%.1f/%s", g.Width, g.Height, g.FPS, g.Format)
}

// Options selects the device and the requested format
type Options struct {
	DeviceIndex int
	Format      core.PixelFormat
	// Width and Height are requested when positive; the driver may pick the nearest mode.
	Width  int
	Height int
}

// Camera is a Source reading from a local capture device
type Camera struct {
	device   *gocv.VideoCapture
	options  Options
	geometry Geometry
	frames   uint64
	logger   logrus.FieldLogger
}

// Open starts the capture stream of the device at opts.DeviceIndex and
// negotiates the highest frame rate available. The camera must be closed
// to stop the stream.
func Open(opts Options, logger logrus.FieldLogger) (*Camera, error) {
	logger = logger.WithField("device", opts.DeviceIndex)
	logger.Debug("Opening camera")

	device, err := gocv.VideoCaptureDevice(opts.DeviceIndex)
	if err != nil {
		return nil, &OpenError{Device: opts.DeviceIndex, Err: err}
	}
	if !device.IsOpened() {
		device.Close()
		return nil, &OpenError{Device: opts.DeviceIndex, Err: errors.New("no device at index")}
	}

	if opts.Width > 0 && opts.Height > 0 {
		device.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		device.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	device.Set(gocv.VideoCaptureFPS, fpsCeiling)

	geometry := Geometry{
		Width:  int(math.Round(device.Get(gocv.VideoCaptureFrameWidth))),
		Height: int(math.Round(device.Get(gocv.VideoCaptureFrameHeight))),
		FPS:    device.Get(gocv.VideoCaptureFPS),
		Format: opts.Format,
	}
	if geometry.Width <= 0 || geometry.Height <= 0 {
		device.Close()
		return nil, &OpenError{
			Device: opts.DeviceIndex,
			Err:    fmt.Errorf("format negotiation failed: %dx%d", geometry.Width, geometry.Height),
		}
	}

	logger.WithFields(logrus.Fields{
		"width":  geometry.Width,
		"height": geometry.Height,
		"fps":    geometry.FPS,
		"format": geometry.Format.String(),
	}).Info("Camera opened")

	return &Camera{
		device:   device,
		options:  opts,
		geometry: geometry,
		logger:   logger,
	}, nil
}

func (c *Camera) Geometry() Geometry {
	return c.geometry
}

// Next blocks until the device delivers a frame. A fresh Mat is allocated
// per frame because ownership moves down the pipeline with it.
func (c *Camera) Next() (gocv.Mat, error) {
	c.frames++

	frame := gocv.NewMat()
	if ok := c.device.Read(&frame); !ok {
		frame.Close()
		return gocv.Mat{}, &CaptureError{
			Device: c.options.DeviceIndex,
			Frame:  c.frames,
			Err:    errors.New("device stopped delivering frames"),
		}
	}

	if err := core.ValidateFrame(frame); err != nil {
		frame.Close()
		return gocv.Mat{}, &CaptureError{Device: c.options.DeviceIndex, Frame: c.frames, Err: err}
	}

	converted, err := core.ConvertFormat(frame, c.geometry.Format)
	if err != nil {
		frame.Close()
		return gocv.Mat{}, &CaptureError{Device: c.options.DeviceIndex, Frame: c.frames, Err: err}
	}

	return converted, nil
}

func (c *Camera) Close() error {
	if c.device == nil {
		return nil
	}
	c.logger.WithField("frames", c.frames).Info("Closing camera")
	err := c.device.Close()
	c.device = nil
	return err
}
