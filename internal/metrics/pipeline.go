// Prometheus instrumentation for the frame pipeline
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"camera-effects-pipeline/internal/core"
)

const namespace = "camfx"

// Collector holds the pipeline metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	FramesCaptured    prometheus.Counter
	FramesDisplayed   prometheus.Counter
	FramesStreamed    prometheus.Counter
	StreamWriteErrors prometheus.Counter
	ChainDuration     prometheus.Histogram
	EffectDuration    *prometheus.HistogramVec
	EffectEnabled     *prometheus.GaugeVec
	State             prometheus.Gauge
}

// New creates a collector and registers it on a fresh registry
func New() *Collector {
	frameBuckets := []float64{.0005, .001, .0025, .005, .01, .02, .04, .08, .16}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames acquired from the camera",
		}),
		FramesDisplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_displayed_total",
			Help:      "Frames handed to the preview",
		}),
		FramesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_streamed_total",
			Help:      "Frames written to the stream sink",
		}),
		StreamWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_write_errors_total",
			Help:      "Frames dropped because the stream write failed",
		}),
		ChainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "effect_chain_duration_seconds",
			Help:      "Time spent running the effect chain per frame",
			Buckets:   frameBuckets,
		}),
		EffectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "effect_duration_seconds",
			Help:      "Time spent in a single enabled effect",
			Buckets:   frameBuckets,
		}, []string{"effect"}),
		EffectEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effect_enabled",
			Help:      "1 when the effect is enabled",
		}, []string{"effect"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Current pipeline state (0 starting, 1 running, 2 stopping, 3 faulted, 4 terminated)",
		}),
	}

	c.registry.MustRegister(
		c.FramesCaptured,
		c.FramesDisplayed,
		c.FramesStreamed,
		c.StreamWriteErrors,
		c.ChainDuration,
		c.EffectDuration,
		c.EffectEnabled,
		c.State,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_mats",
			Help:      "OpenCV matrices not yet closed (always 0 unless built with the matprofile tag)",
		}, func() float64 {
			return float64(core.LiveMats())
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveEffect records the duration of one effect application
func (c *Collector) ObserveEffect(name string, elapsed time.Duration) {
	c.EffectDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (c *Collector) SetEffectEnabled(name string, enabled bool) {
	value := 0.0
	if enabled {
		value = 1
	}
	c.EffectEnabled.WithLabelValues(name).Set(value)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}()

	logger.WithField("addr", addr).Info("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
