package stream

import (
	"errors"
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// GStreamerSink pushes frames into an appsrc pipeline through OpenCV's
// video writer. The writer caps are fixed at open time, so frames of another
// size or channel count are adapted into scratch buffers first.
type GStreamerSink struct {
	writer  *gocv.VideoWriter
	target  Target
	color   gocv.Mat
	resized gocv.Mat
	logger  logrus.FieldLogger
}

func OpenGStreamer(pipeline string, target Target, logger logrus.FieldLogger) (*GStreamerSink, error) {
	fps := target.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	writer, err := gocv.VideoWriterFileWithAPI(pipeline, gocv.VideoCaptureGstreamer, "H264", fps, target.Width, target.Height, true)
	if err != nil {
		// the native writer exists even when opening it failed
		if writer != nil {
			writer.Close()
		}
		return nil, &OpenError{Descriptor: pipeline, Err: err}
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, &OpenError{Descriptor: pipeline, Err: errors.New("video writer did not open")}
	}

	logger.WithFields(logrus.Fields{
		"width":  target.Width,
		"height": target.Height,
		"fps":    fps,
	}).Info("GStreamer sink opened")

	return &GStreamerSink{
		writer:  writer,
		target:  target,
		color:   gocv.NewMat(),
		resized: gocv.NewMat(),
		logger:  logger,
	}, nil
}

func (s *GStreamerSink) Write(frame gocv.Mat) error {
	out := frame

	if out.Channels() == 1 {
		if err := gocv.CvtColor(out, &s.color, gocv.ColorGrayToBGR); err != nil {
			return &WriteError{Err: err}
		}
		out = s.color
	}

	if out.Cols() != s.target.Width || out.Rows() != s.target.Height {
		size := image.Point{X: s.target.Width, Y: s.target.Height}
		if err := gocv.Resize(out, &s.resized, size, 0, 0, gocv.InterpolationArea); err != nil {
			return &WriteError{Err: err}
		}
		out = s.resized
	}

	if err := s.writer.Write(out); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

func (s *GStreamerSink) Close() error {
	if s.writer == nil {
		return nil
	}
	s.logger.Info("Closing GStreamer sink")
	err := s.writer.Close()
	s.writer = nil
	s.color.Close()
	s.resized.Close()
	return err
}
