package pipeline

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"camera-effects-pipeline/internal/core"
)

// ReportInterval is how often throughput and memory are logged at debug level.
const ReportInterval = 5 * time.Second

// throughput tracks frame rate over report windows. Only the loop goroutine touches it.
type throughput struct {
	interval time.Duration
	now      func() time.Time

	started     time.Time
	windowStart time.Time
	window      uint64
	total       uint64
}

func newThroughput(interval time.Duration, now func() time.Time) *throughput {
	t := now()
	return &throughput{
		interval:    interval,
		now:         now,
		started:     t,
		windowStart: t,
	}
}

// frame counts one processed frame and returns the window rate when the
// window is full, or ok=false while it is still filling.
func (t *throughput) frame() (fps float64, ok bool) {
	t.window++
	t.total++

	elapsed := t.now().Sub(t.windowStart)
	if elapsed < t.interval {
		return 0, false
	}

	fps = float64(t.window) / elapsed.Seconds()
	t.window = 0
	t.windowStart = t.now()
	return fps, true
}

// average is the frame rate since the tracker was created
func (t *throughput) average() float64 {
	elapsed := t.now().Sub(t.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.total) / elapsed
}

func logUsage(logger logrus.FieldLogger, fps float64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.WithFields(logrus.Fields{
		"fps":        fps,
		"alloc_mb":   float64(m.Alloc) / 1024 / 1024,
		"sys_mb":     float64(m.Sys) / 1024 / 1024,
		"num_gc":     m.NumGC,
		"goroutines": runtime.NumGoroutine(),
		"live_mats":  core.LiveMats(),
	}).Debug("Pipeline throughput")
}
