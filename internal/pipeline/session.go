// Pipeline session: capture -> effect chain -> preview -> stream, one frame at a time
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects-pipeline/internal/capture"
	"camera-effects-pipeline/internal/core"
	"camera-effects-pipeline/internal/effects"
	"camera-effects-pipeline/internal/events"
	"camera-effects-pipeline/internal/metrics"
	"camera-effects-pipeline/internal/preview"
	"camera-effects-pipeline/internal/stream"
)

// Deps are the collaborators a session is assembled from
type Deps struct {
	OpenSource func() (capture.Source, error)
	// OpenStream is optional. When nil or failing, the session runs preview-only.
	OpenStream       func(geometry capture.Geometry) (stream.Sink, error)
	StreamDescriptor string

	Preview preview.Sink
	Chain   *effects.Chain

	// Optional instrumentation
	Metrics *metrics.Collector
	Events  *events.Bus
}

func (d Deps) validate() error {
	switch {
	case d.OpenSource == nil:
		return errors.New("no frame source configured")
	case d.Preview == nil:
		return errors.New("no preview configured")
	case d.Chain == nil:
		return errors.New("no effect chain configured")
	}
	return nil
}

// Session owns the source, sinks and effect chain for the lifetime of the
// process. Start and Run must be called from the same goroutine; toggle
// callbacks may arrive from any goroutine.
type Session struct {
	id     string
	deps   Deps
	logger logrus.FieldLogger
	state  atomic.Int32

	source   capture.Source
	sink     stream.Sink
	degraded bool

	frames         atomic.Uint64
	streamFailures int
	dropped        uint64
	rate           *throughput
}

func NewSession(deps Deps, logger logrus.FieldLogger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:     id,
		deps:   deps,
		logger: logger.WithField("session_id", id),
	}
	s.state.Store(int32(StateStarting))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Frames returns the number of frames that went through the whole pipeline
func (s *Session) Frames() uint64 {
	return s.frames.Load()
}

// Degraded reports whether the stream sink failed to open at start
func (s *Session) Degraded() bool {
	return s.degraded
}

// Start opens the frame source (fatal on failure), the stream sink
// (non-fatal) and binds one preview toggle per effect. On failure the
// session is torn down and ends Terminated.
func (s *Session) Start() error {
	if state := s.State(); state != StateStarting {
		return fmt.Errorf("session cannot start from state %s", state)
	}
	s.publishState(StateStarting, StateStarting)
	s.logger.Info("Starting pipeline session")

	if err := s.deps.validate(); err != nil {
		s.fail(err)
		return err
	}

	source, err := s.deps.OpenSource()
	if err != nil {
		s.fail(err)
		return err
	}
	s.source = source

	if err := s.checkOutputSize(); err != nil {
		s.fail(err)
		return err
	}

	s.openStream()
	s.bindToggles()

	s.transition(StateRunning)
	return nil
}

// Run drives frames until the preview or ctx asks to stop (nil error) or
// a capture, effect or preview failure faults the session. Cancellation
// is only observed between frames. Resources are always released and the
// session ends Terminated.
func (s *Session) Run(ctx context.Context) error {
	if state := s.State(); state != StateRunning {
		return fmt.Errorf("session cannot run from state %s", state)
	}

	s.rate = newThroughput(ReportInterval, time.Now)
	err := s.loop(ctx)

	summary := s.logger.WithFields(logrus.Fields{
		"frames":         s.Frames(),
		"average_fps":    s.rate.average(),
		"stream_dropped": s.dropped,
	})
	if err != nil {
		summary.WithError(err).Error("Pipeline faulted")
		s.transition(StateFaulted)
	} else {
		summary.Info("Pipeline stopping")
		s.transition(StateStopping)
	}

	s.teardown()
	s.transition(StateTerminated)
	return err
}

func (s *Session) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stop requested by context")
			return nil
		default:
		}

		frame, err := s.source.Next()
		if err != nil {
			return err
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.FramesCaptured.Inc()
		}

		if err := s.process(frame); err != nil {
			return err
		}

		if s.deps.Preview.StopRequested() {
			s.logger.Info("Stop requested by preview")
			return nil
		}
	}
}

// process owns frame and releases whatever the chain hands back.
func (s *Session) process(frame gocv.Mat) error {
	start := time.Now()
	frame, err := s.deps.Chain.RunAll(frame)
	defer frame.Close()
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	s.logger.WithField("elapsed", elapsed).Debug("Effects time")
	if s.deps.Metrics != nil {
		s.deps.Metrics.ChainDuration.Observe(elapsed.Seconds())
	}

	if err := s.deps.Preview.Show(frame); err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.FramesDisplayed.Inc()
	}

	if s.sink != nil {
		s.writeStream(frame)
	}

	s.frames.Add(1)
	if fps, ok := s.rate.frame(); ok {
		logUsage(s.logger, fps)
	}
	return nil
}

// writeStream sends one frame. Failures drop the frame and are never retried.
func (s *Session) writeStream(frame gocv.Mat) {
	if err := s.sink.Write(frame); err != nil {
		s.streamFailures++
		s.dropped++
		if s.deps.Metrics != nil {
			s.deps.Metrics.StreamWriteErrors.Inc()
		}

		entry := s.logger.WithError(err).WithField("consecutive_failures", s.streamFailures)
		if s.streamFailures == 1 {
			entry.Warn("Stream write failed, dropping frame")
		} else {
			entry.Debug("Stream write failed, dropping frame")
		}
		return
	}

	if s.streamFailures > 0 {
		s.logger.WithField("dropped", s.streamFailures).Info("Stream write recovered")
		s.streamFailures = 0
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.FramesStreamed.Inc()
	}
}

// checkOutputSize rejects chains that would grow frames past the size
// limit once every effect is on, instead of faulting on the first toggle.
func (s *Session) checkOutputSize() error {
	geometry := s.source.Geometry()
	if geometry.Width <= 0 || geometry.Height <= 0 {
		return nil
	}
	out := s.deps.Chain.MaxOutputSize(geometry.Width, geometry.Height)
	if out.X > core.MaxDimension || out.Y > core.MaxDimension {
		return fmt.Errorf("effect chain turns %dx%d frames into %dx%d, above the %d pixel limit; lower the scale factor",
			geometry.Width, geometry.Height, out.X, out.Y, core.MaxDimension)
	}
	return nil
}

func (s *Session) openStream() {
	if s.deps.OpenStream == nil {
		s.logger.Info("No stream configured, preview only")
		return
	}

	sink, err := s.deps.OpenStream(s.source.Geometry())
	if err != nil {
		s.degraded = true
		s.logger.WithError(err).Warn("Stream sink unavailable, continuing with preview only")
		if s.deps.Events != nil {
			s.deps.Events.Publish(events.StreamDegradedEvent{
				SessionID:  s.id,
				Descriptor: s.deps.StreamDescriptor,
				Error:      err.Error(),
				Timestamp:  time.Now(),
			})
		}
		return
	}
	s.sink = sink
}

// bindToggles resets every effect to disabled and gives it a preview control.
// A control that cannot be created is logged; the effect just stays off.
func (s *Session) bindToggles() {
	for _, effect := range s.deps.Chain.Effects() {
		effect.SetEnabled(false)
		if s.deps.Metrics != nil {
			s.deps.Metrics.SetEffectEnabled(effect.Name(), false)
		}

		if err := s.deps.Preview.AddToggle(effect.Name(), func() { s.toggle(effect) }); err != nil {
			s.logger.WithError(err).WithField("effect", effect.Name()).Warn("Cannot create toggle control")
		}
	}
}

// toggle runs on the preview's goroutine.
func (s *Session) toggle(effect *effects.Effect) {
	enabled := effect.Toggle()

	s.logger.WithFields(logrus.Fields{
		"effect":  effect.Name(),
		"enabled": enabled,
	}).Info("Effect toggled")

	if s.deps.Metrics != nil {
		s.deps.Metrics.SetEffectEnabled(effect.Name(), enabled)
	}
	if s.deps.Events != nil {
		s.deps.Events.Publish(events.EffectToggledEvent{
			SessionID: s.id,
			Effect:    effect.Name(),
			Enabled:   enabled,
			Timestamp: time.Now(),
		})
	}
}

func (s *Session) fail(err error) {
	s.logger.WithError(err).Error("Pipeline session failed to start")
	s.transition(StateFaulted)
	s.teardown()
	s.transition(StateTerminated)
}

// teardown closes the stream sink, the source, then the preview.
func (s *Session) teardown() {
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close stream sink")
		}
		s.sink = nil
	}

	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close frame source")
		}
		s.source = nil
	}

	if s.deps.Preview != nil {
		if err := s.deps.Preview.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close preview")
		}
	}
}

func (s *Session) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	s.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("State transition")
	s.publishState(from, to)
}

func (s *Session) publishState(from, to State) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.State.Set(float64(to))
	}
	if s.deps.Events != nil {
		s.deps.Events.Publish(events.StateChangedEvent{
			SessionID: s.id,
			From:      from.String(),
			To:        to.String(),
			Timestamp: time.Now(),
		})
	}
}
