// Camera Effects Pipeline
// Live camera capture through toggleable effects to a preview window and a video stream.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"camera-effects-pipeline/internal/capture"
	"camera-effects-pipeline/internal/config"
	"camera-effects-pipeline/internal/core"
	"camera-effects-pipeline/internal/effects"
	"camera-effects-pipeline/internal/events"
	"camera-effects-pipeline/internal/metrics"
	"camera-effects-pipeline/internal/pipeline"
	"camera-effects-pipeline/internal/preview"
	"camera-effects-pipeline/internal/stream"
)

const (
	AppName    = "camfx"
	AppVersion = "1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(pipeline.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          AppName,
		Short:        "Apply live effects to a camera feed, preview it and stream it",
		Version:      AppVersion,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	config.RegisterFlags(root.Flags())

	root.AddCommand(&cobra.Command{
		Use:   "effects",
		Short: "List the available effects",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range effects.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})

	return root
}

func run(cfg *config.Config) error {
	logger := initLogger(cfg.Logging.Debug)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": cfg.Logging.Debug,
	}).Info("Starting camera effects pipeline")

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, problem := range problems {
			logger.WithField("problem", problem).Error("Invalid configuration")
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	format, _ := core.ParsePixelFormat(cfg.Camera.Format)
	kind, _ := preview.ParseKind(cfg.Preview.Kind)

	collector := metrics.New()
	chain, err := effects.BuildChain(cfg.Effects.Order, effects.Options{ScaleFactor: cfg.Effects.ScaleFactor})
	if err != nil {
		logger.WithError(err).Error("Cannot build effect chain")
		return err
	}
	chain.SetObserver(collector)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Address != "" {
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Address, logger); err != nil {
				logger.WithError(err).Warn("Metrics server stopped")
			}
		}()
	}

	surface, err := preview.New(kind, preview.Options{Title: cfg.Preview.Title, Input: os.Stdin}, logger)
	if err != nil {
		logger.WithError(err).Error("Cannot create preview")
		return err
	}

	bus := events.New()
	if status, ok := surface.(interface{ SetStatus(string) }); ok {
		unsubState := bus.Subscribe(func(e events.StateChangedEvent) {
			status.SetStatus("Pipeline " + e.To)
		})
		defer unsubState()
		unsubStream := bus.Subscribe(func(e events.StreamDegradedEvent) {
			status.SetStatus("Stream unavailable: " + e.Error)
		})
		defer unsubStream()
	}

	deps := pipeline.Deps{
		OpenSource: func() (capture.Source, error) {
			if cfg.Camera.File != "" {
				return capture.OpenFile(cfg.Camera.File, format, logger)
			}
			return capture.Open(capture.Options{
				DeviceIndex: cfg.Camera.Device,
				Format:      format,
				Width:       cfg.Camera.Width,
				Height:      cfg.Camera.Height,
			}, logger)
		},
		StreamDescriptor: cfg.Stream.Descriptor,
		Preview:          surface,
		Chain:            chain,
		Metrics:          collector,
		Events:           bus,
	}
	if cfg.Stream.Descriptor != "" {
		deps.OpenStream = func(geometry capture.Geometry) (stream.Sink, error) {
			return stream.Open(cfg.Stream.Descriptor, streamTarget(geometry, cfg.Stream.FPS),
				stream.Options{WriteTimeout: cfg.WriteTimeout()}, logger)
		}
	}

	session := pipeline.NewSession(deps, logger)

	// Host may return before the body does when the toolkit owns the main thread.
	done := make(chan error, 1)
	surface.Host(func() {
		if err := session.Start(); err != nil {
			done <- err
			return
		}
		done <- session.Run(ctx)
	})
	runErr := <-done

	var captureErr *capture.CaptureError
	switch {
	case runErr == nil:
		logger.WithField("frames", session.Frames()).Info("Application shutting down gracefully")
	case errors.As(runErr, &captureErr):
		logger.WithError(runErr).Error("Camera lost, shutting down")
	default:
		logger.WithError(runErr).Error("Pipeline terminated with error")
	}
	return runErr
}

// streamTarget sizes the encoder for the captured geometry. The frame rate
// comes from the override, then the camera, then the writer default.
func streamTarget(geometry capture.Geometry, override float64) stream.Target {
	fps := override
	if fps <= 0 {
		fps = geometry.FPS
	}
	if fps <= 0 {
		fps = stream.DefaultFPS
	}
	return stream.Target{Width: geometry.Width, Height: geometry.Height, FPS: fps}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
