package capture

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects-pipeline/internal/core"
)

// DefaultStillFPS paces still images and videos whose container reports no rate.
const DefaultStillFPS = 30.0

var stillExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tiff": true, ".tif": true, ".bmp": true,
}

// IsStillImage reports whether path names an image format OpenCV can read
func IsStillImage(path string) bool {
	return stillExtensions[strings.ToLower(filepath.Ext(path))]
}

// File replays a still image forever, or a video file until its end, at
// the rate a camera would deliver it.
type File struct {
	path     string
	still    gocv.Mat
	hasStill bool
	video    *gocv.VideoCapture
	geometry Geometry
	interval time.Duration
	next     time.Time
	frames   uint64
	logger   logrus.FieldLogger
}

// OpenFile opens a still image or video as a frame source. End of a video
// is reported as a CaptureError wrapping io.EOF.
func OpenFile(path string, format core.PixelFormat, logger logrus.FieldLogger) (*File, error) {
	logger = logger.WithField("path", path)
	logger.Debug("Opening file source")

	f := &File{path: path, logger: logger}
	if IsStillImage(path) {
		if err := f.openStill(format); err != nil {
			return nil, &OpenError{Path: path, Err: err}
		}
	} else if err := f.openVideo(format); err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	f.interval = time.Duration(float64(time.Second) / f.geometry.FPS)
	logger.WithFields(logrus.Fields{
		"width":  f.geometry.Width,
		"height": f.geometry.Height,
		"fps":    f.geometry.FPS,
		"format": f.geometry.Format.String(),
	}).Info("File source opened")
	return f, nil
}

func (f *File) openStill(format core.PixelFormat) error {
	img := gocv.IMRead(f.path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return errors.New("failed to load image")
	}

	converted, err := core.ConvertFormat(img, format)
	if err != nil {
		img.Close()
		return err
	}

	f.still = converted
	f.hasStill = true
	f.geometry = Geometry{Width: converted.Cols(), Height: converted.Rows(), FPS: DefaultStillFPS, Format: format}
	return nil
}

func (f *File) openVideo(format core.PixelFormat) error {
	video, err := gocv.VideoCaptureFile(f.path)
	if err != nil {
		return err
	}
	if !video.IsOpened() {
		video.Close()
		return errors.New("unsupported or unreadable video")
	}

	f.video = video
	f.geometry = Geometry{
		Width:  int(math.Round(video.Get(gocv.VideoCaptureFrameWidth))),
		Height: int(math.Round(video.Get(gocv.VideoCaptureFrameHeight))),
		FPS:    video.Get(gocv.VideoCaptureFPS),
		Format: format,
	}
	if f.geometry.FPS <= 0 {
		f.geometry.FPS = DefaultStillFPS
	}
	if f.geometry.Width <= 0 || f.geometry.Height <= 0 {
		video.Close()
		return fmt.Errorf("invalid video size %dx%d", f.geometry.Width, f.geometry.Height)
	}
	return nil
}

func (f *File) Geometry() Geometry {
	return f.geometry
}

func (f *File) Next() (gocv.Mat, error) {
	f.frames++
	f.pace()

	if f.video == nil {
		if !f.hasStill {
			return gocv.Mat{}, f.captureError(errors.New("source closed"))
		}
		return f.still.Clone(), nil
	}

	frame := gocv.NewMat()
	if ok := f.video.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return gocv.Mat{}, f.captureError(io.EOF)
	}

	converted, err := core.ConvertFormat(frame, f.geometry.Format)
	if err != nil {
		frame.Close()
		return gocv.Mat{}, f.captureError(err)
	}
	return converted, nil
}

// pace sleeps until the next frame is due. A slow consumer is not made
// to catch up.
func (f *File) pace() {
	now := time.Now()
	if f.next.After(now) {
		time.Sleep(f.next.Sub(now))
		now = f.next
	}
	f.next = now.Add(f.interval)
}

func (f *File) captureError(err error) error {
	return &CaptureError{Device: -1, Path: f.path, Frame: f.frames, Err: err}
}

func (f *File) Close() error {
	f.logger.WithField("frames", f.frames).Info("Closing file source")
	if f.video != nil {
		err := f.video.Close()
		f.video = nil
		return err
	}
	if f.hasStill {
		f.hasStill = false
		return f.still.Close()
	}
	return nil
}
