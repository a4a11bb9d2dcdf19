package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects-pipeline/internal/capture"
	"camera-effects-pipeline/internal/core"
	"camera-effects-pipeline/internal/effects"
	"camera-effects-pipeline/internal/events"
	"camera-effects-pipeline/internal/metrics"
	"camera-effects-pipeline/internal/stream"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeSource yields one uniform frame per value, then reports a disconnect.
type fakeSource struct {
	values []byte
	calls  int
	closed bool
}

func (f *fakeSource) Next() (gocv.Mat, error) {
	f.calls++
	if f.calls > len(f.values) {
		return gocv.Mat{}, &capture.CaptureError{Frame: uint64(f.calls), Err: errors.New("device disconnected")}
	}
	v := float64(f.values[f.calls-1])
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 4, 6, gocv.MatTypeCV8UC3), nil
}

func (f *fakeSource) Geometry() capture.Geometry {
	return capture.Geometry{Width: 6, Height: 4, FPS: 30, Format: core.FormatBGR}
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// fakePreview records the first sample of every shown frame.
type fakePreview struct {
	shown     []byte
	labels    []string
	toggles   map[string]func()
	stopAfter int
	closed    bool
}

func newFakePreview(stopAfter int) *fakePreview {
	return &fakePreview{toggles: make(map[string]func()), stopAfter: stopAfter}
}

func (p *fakePreview) Show(frame gocv.Mat) error {
	p.shown = append(p.shown, frame.GetUCharAt(0, 0))
	return nil
}

func (p *fakePreview) AddToggle(label string, onToggle func()) error {
	p.labels = append(p.labels, label)
	p.toggles[label] = onToggle
	return nil
}

func (p *fakePreview) StopRequested() bool {
	return p.stopAfter > 0 && len(p.shown) >= p.stopAfter
}

func (p *fakePreview) Close() error {
	p.closed = true
	return nil
}

// fakeSink fails the writes whose 1-based index is in failOn.
type fakeSink struct {
	failOn    map[int]bool
	attempts  int
	delivered []byte
	closed    bool
}

func (s *fakeSink) Write(frame gocv.Mat) error {
	s.attempts++
	if s.failOn[s.attempts] {
		return &stream.WriteError{Err: errors.New("connection reset")}
	}
	s.delivered = append(s.delivered, frame.GetUCharAt(0, 0))
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func newChain(t *testing.T) *effects.Chain {
	t.Helper()
	chain, err := effects.BuildChain(effects.DefaultOrder(), effects.Options{})
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}
	return chain
}

func newDeps(t *testing.T, source *fakeSource, sink *fakeSink, p *fakePreview) Deps {
	t.Helper()
	deps := Deps{
		OpenSource: func() (capture.Source, error) { return source, nil },
		Preview:    p,
		Chain:      newChain(t),
		Metrics:    metrics.New(),
	}
	if sink != nil {
		deps.OpenStream = func(capture.Geometry) (stream.Sink, error) { return sink, nil }
	}
	return deps
}

func TestRunFaultsAfterDisconnect(t *testing.T) {
	source := &fakeSource{values: []byte{10, 20, 30}}
	sink := &fakeSink{}
	p := newFakePreview(0)

	session := NewSession(newDeps(t, source, sink, p), quietLogger())
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if session.State() != StateRunning {
		t.Fatalf("expected running, got %s", session.State())
	}

	p.toggles["Invert"]()

	err := session.Run(context.Background())

	var captureErr *capture.CaptureError
	if !errors.As(err, &captureErr) {
		t.Fatalf("expected CaptureError, got %v", err)
	}
	if ExitCode(err) == 0 {
		t.Error("faulted session must map to a non-zero exit code")
	}
	if session.State() != StateTerminated {
		t.Errorf("expected terminated, got %s", session.State())
	}

	want := []byte{245, 235, 225}
	if string(p.shown) != string(want) {
		t.Errorf("preview saw %v, want %v", p.shown, want)
	}
	if string(sink.delivered) != string(want) {
		t.Errorf("stream saw %v, want %v", sink.delivered, want)
	}
	if source.calls != 4 {
		t.Errorf("source read %d times, want 4", source.calls)
	}
	if session.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", session.Frames())
	}
	if !source.closed || !sink.closed || !p.closed {
		t.Errorf("resources not released: source=%v sink=%v preview=%v", source.closed, sink.closed, p.closed)
	}
}

func TestStreamWriteFailureIsIsolated(t *testing.T) {
	source := &fakeSource{values: []byte{1, 2, 3, 4, 5, 6}}
	sink := &fakeSink{failOn: map[int]bool{2: true}}
	p := newFakePreview(5)
	deps := newDeps(t, source, sink, p)

	session := NewSession(deps, quietLogger())
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ExitCode(nil) != 0 {
		t.Error("clean stop must map to exit code 0")
	}

	if len(p.shown) != 5 {
		t.Errorf("preview got %d frames, want 5", len(p.shown))
	}
	if sink.attempts != 5 {
		t.Errorf("stream got %d writes, want 5", sink.attempts)
	}
	if want := []byte{1, 3, 4, 5}; string(sink.delivered) != string(want) {
		t.Errorf("stream delivered %v, want %v", sink.delivered, want)
	}
	if got := testutil.ToFloat64(deps.Metrics.StreamWriteErrors); got != 1 {
		t.Errorf("stream write errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(deps.Metrics.FramesStreamed); got != 4 {
		t.Errorf("frames streamed = %v, want 4", got)
	}
	if got := testutil.ToFloat64(deps.Metrics.State); got != float64(StateTerminated) {
		t.Errorf("state gauge = %v, want %v", got, float64(StateTerminated))
	}
	if source.calls != 5 {
		t.Errorf("source read %d times, want 5", source.calls)
	}
}

func TestStartFailsWithoutSource(t *testing.T) {
	p := newFakePreview(0)
	streamOpened := false

	deps := Deps{
		OpenSource: func() (capture.Source, error) {
			return nil, &capture.OpenError{Device: 3, Err: errors.New("no device at index")}
		},
		OpenStream: func(capture.Geometry) (stream.Sink, error) {
			streamOpened = true
			return &fakeSink{}, nil
		},
		Preview: p,
		Chain:   newChain(t),
	}

	session := NewSession(deps, quietLogger())
	err := session.Start()

	var openErr *capture.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if session.State() != StateTerminated {
		t.Errorf("expected terminated, got %s", session.State())
	}
	if streamOpened {
		t.Error("stream must not be opened without a source")
	}
	if !p.closed {
		t.Error("preview must be closed on a failed start")
	}
	if err := session.Run(context.Background()); err == nil {
		t.Error("Run must refuse a terminated session")
	}
}

func TestStreamOpenFailureDegrades(t *testing.T) {
	source := &fakeSource{values: []byte{7, 8, 9}}
	p := newFakePreview(2)
	bus := events.New()

	degraded := make(chan events.StreamDegradedEvent, 1)
	unsub := bus.Subscribe(func(e events.StreamDegradedEvent) { degraded <- e })
	defer unsub()

	deps := newDeps(t, source, nil, p)
	deps.StreamDescriptor = "ws://unreachable"
	deps.Events = bus
	deps.OpenStream = func(capture.Geometry) (stream.Sink, error) {
		return nil, &stream.OpenError{Descriptor: "ws://unreachable", Err: errors.New("refused")}
	}

	session := NewSession(deps, quietLogger())
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !session.Degraded() {
		t.Error("expected degraded session")
	}

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(p.shown) != 2 {
		t.Errorf("preview got %d frames, want 2", len(p.shown))
	}

	select {
	case e := <-degraded:
		if e.Descriptor != "ws://unreachable" || e.SessionID != session.ID() {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no degradation event published")
	}
}

func TestCancelledContextStopsBeforeCapture(t *testing.T) {
	source := &fakeSource{values: []byte{1}}
	p := newFakePreview(0)

	session := NewSession(newDeps(t, source, nil, p), quietLogger())
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := session.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if source.calls != 0 {
		t.Errorf("source read %d times after cancellation, want 0", source.calls)
	}
	if session.State() != StateTerminated {
		t.Errorf("expected terminated, got %s", session.State())
	}
}

func TestTogglesBoundToEffects(t *testing.T) {
	source := &fakeSource{}
	p := newFakePreview(0)
	bus := events.New()
	deps := newDeps(t, source, nil, p)
	deps.Events = bus

	toggled := make(chan events.EffectToggledEvent, 1)
	unsub := bus.Subscribe(func(e events.EffectToggledEvent) { toggled <- e })
	defer unsub()

	scale, _ := deps.Chain.Lookup("Scale")
	scale.SetEnabled(true)

	session := NewSession(deps, quietLogger())
	if err := session.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"Invert", "Horizontal flip", "Vertical flip", "Scale"}
	if len(p.labels) != len(want) {
		t.Fatalf("got toggles %v, want %v", p.labels, want)
	}
	for i := range want {
		if p.labels[i] != want[i] {
			t.Errorf("toggle %d = %q, want %q", i, p.labels[i], want[i])
		}
	}
	if scale.Enabled() {
		t.Error("effects must start disabled")
	}

	p.toggles["Vertical flip"]()
	flip, _ := deps.Chain.Lookup("Vertical flip")
	if !flip.Enabled() {
		t.Error("toggle control did not enable the effect")
	}
	if got := testutil.ToFloat64(deps.Metrics.EffectEnabled.WithLabelValues("Vertical flip")); got != 1 {
		t.Errorf("effect gauge = %v, want 1", got)
	}

	select {
	case e := <-toggled:
		if e.Effect != "Vertical flip" || !e.Enabled {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no toggle event published")
	}
}

func TestRunRequiresStart(t *testing.T) {
	session := NewSession(newDeps(t, &fakeSource{}, nil, newFakePreview(0)), quietLogger())
	if err := session.Run(context.Background()); err == nil {
		t.Fatal("expected error when running an unstarted session")
	}
	if session.State() != StateStarting {
		t.Errorf("state changed to %s", session.State())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateStarting:   "starting",
		StateRunning:    "running",
		StateStopping:   "stopping",
		StateFaulted:    "faulted",
		StateTerminated: "terminated",
		State(42):       "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestStartRejectsOversizedChain(t *testing.T) {
	source := &fakeSource{values: []byte{10}}
	sink := &fakeSink{}
	p := newFakePreview(0)

	deps := newDeps(t, source, sink, p)
	chain, err := effects.BuildChain(effects.DefaultOrder(), effects.Options{ScaleFactor: 4000})
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}
	deps.Chain = chain

	session := NewSession(deps, quietLogger())
	if err := session.Start(); err == nil {
		t.Fatal("expected Start to reject a chain growing 6x4 frames past the size limit")
	}
	if session.State() != StateTerminated {
		t.Errorf("expected terminated, got %s", session.State())
	}
	if !source.closed || !p.closed {
		t.Error("source and preview must be closed on a failed start")
	}
	if sink.attempts != 0 || len(p.labels) != 0 {
		t.Error("no frame or toggle may be produced after a rejected start")
	}
}
