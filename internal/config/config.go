// Runtime configuration: defaults < TOML file < CAMFX_* environment < command line flags
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"camera-effects-pipeline/internal/core"
	"camera-effects-pipeline/internal/stream"
)

const (
	// DefaultPath is read when present; a missing default file is not an error.
	DefaultPath = "camfx.toml"
	EnvPrefix   = "CAMFX_"
)

type Config struct {
	Camera  CameraConfig  `toml:"camera"`
	Stream  StreamConfig  `toml:"stream"`
	Preview PreviewConfig `toml:"preview"`
	Effects EffectsConfig `toml:"effects"`
	Metrics MetricsConfig `toml:"metrics"`
	Logging LoggingConfig `toml:"logging"`
}

type CameraConfig struct {
	Device int `toml:"device"`
	// File replaces the device with a still image or video when set.
	File   string `toml:"file"`
	Format string `toml:"format"`
	// Zero keeps whatever the driver negotiates.
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

type StreamConfig struct {
	// Defaults to the RTSP pipeline; empty disables streaming.
	Descriptor string `toml:"descriptor"`
	// FPS overrides the camera rate announced to the encoder. Zero means
	// camera rate, falling back to 30 when the driver reports none.
	FPS            float64 `toml:"fps"`
	WriteTimeoutMS int     `toml:"write_timeout_ms"`
}

type PreviewConfig struct {
	Kind  string `toml:"kind"`
	Title string `toml:"title"`
}

type EffectsConfig struct {
	Order       []string `toml:"order"`
	ScaleFactor float64  `toml:"scale_factor"`
}

type MetricsConfig struct {
	// Empty disables the /metrics endpoint.
	Address string `toml:"address"`
}

type LoggingConfig struct {
	Debug bool `toml:"debug"`
}

func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Device: 0,
			Format: "bgr",
		},
		Stream: StreamConfig{
			Descriptor:     stream.DefaultDescriptor,
			WriteTimeoutMS: 2000,
		},
		Preview: PreviewConfig{
			Kind:  "fyne",
			Title: "video capture",
		},
		Effects: EffectsConfig{
			Order:       []string{"invert", "flip-horizontal", "flip-vertical", "scale"},
			ScaleFactor: 2.0,
		},
	}
}

// WriteTimeout returns the stream write timeout as a duration
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Stream.WriteTimeoutMS) * time.Millisecond
}

// setting ties one configuration key to its flag and environment variable.
// Values from both sources arrive as strings and go through set.
type setting struct {
	flag  string
	env   string
	usage string
	set   func(c *Config, value string) error
}

var settings = []setting{
	{"device", "DEVICE", "camera device index", func(c *Config, v string) error {
		return setInt(&c.Camera.Device, v)
	}},
	{"file", "FILE", "read frames from an image or video file instead of the camera", func(c *Config, v string) error {
		c.Camera.File = v
		return nil
	}},
	{"format", "FORMAT", "pixel format of the session (bgr, gray)", func(c *Config, v string) error {
		c.Camera.Format = v
		return nil
	}},
	{"width", "WIDTH", "requested capture width, 0 keeps the driver default", func(c *Config, v string) error {
		return setInt(&c.Camera.Width, v)
	}},
	{"height", "HEIGHT", "requested capture height, 0 keeps the driver default", func(c *Config, v string) error {
		return setInt(&c.Camera.Height, v)
	}},
	{"stream", "STREAM", "stream descriptor: GStreamer pipeline or ws:// URL, empty disables streaming", func(c *Config, v string) error {
		c.Stream.Descriptor = v
		return nil
	}},
	{"stream-fps", "STREAM_FPS", "frame rate announced to the stream encoder, 0 uses the camera rate", func(c *Config, v string) error {
		return setFloat(&c.Stream.FPS, v)
	}},
	{"write-timeout-ms", "WRITE_TIMEOUT_MS", "per-frame network stream write timeout in milliseconds", func(c *Config, v string) error {
		return setInt(&c.Stream.WriteTimeoutMS, v)
	}},
	{"preview", "PREVIEW", "preview surface (fyne, highgui, console)", func(c *Config, v string) error {
		c.Preview.Kind = v
		return nil
	}},
	{"title", "TITLE", "preview window title", func(c *Config, v string) error {
		c.Preview.Title = v
		return nil
	}},
	{"effects", "EFFECTS", "comma separated effect order", func(c *Config, v string) error {
		c.Effects.Order = splitList(v)
		return nil
	}},
	{"scale-factor", "SCALE_FACTOR", "scale effect factor", func(c *Config, v string) error {
		return setFloat(&c.Effects.ScaleFactor, v)
	}},
	{"metrics-addr", "METRICS_ADDR", "address to serve /metrics on, empty disables it", func(c *Config, v string) error {
		c.Metrics.Address = v
		return nil
	}},
	{"debug", "DEBUG", "enable debug mode with verbose logging", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Logging.Debug = b
		return nil
	}},
}

// RegisterFlags declares every setting on fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", DefaultPath, "path to the TOML configuration file")
	fs.Int("device", d.Camera.Device, usage("device"))
	fs.String("file", d.Camera.File, usage("file"))
	fs.String("format", d.Camera.Format, usage("format"))
	fs.Int("width", d.Camera.Width, usage("width"))
	fs.Int("height", d.Camera.Height, usage("height"))
	fs.String("stream", d.Stream.Descriptor, usage("stream"))
	fs.Float64("stream-fps", d.Stream.FPS, usage("stream-fps"))
	fs.Int("write-timeout-ms", d.Stream.WriteTimeoutMS, usage("write-timeout-ms"))
	fs.String("preview", d.Preview.Kind, usage("preview"))
	fs.String("title", d.Preview.Title, usage("title"))
	fs.StringSlice("effects", d.Effects.Order, usage("effects"))
	fs.Float64("scale-factor", d.Effects.ScaleFactor, usage("scale-factor"))
	fs.String("metrics-addr", d.Metrics.Address, usage("metrics-addr"))
	fs.Bool("debug", d.Logging.Debug, usage("debug"))
}

func usage(flag string) string {
	for _, s := range settings {
		if s.flag == flag {
			return s.usage
		}
	}
	return ""
}

// Load resolves the configuration. fs may be nil; otherwise only flags the
// user actually set override file and environment values.
func Load(fs *pflag.FlagSet) (*Config, error) {
	path := DefaultPath
	explicit := false
	if fs != nil && fs.Changed("config") {
		path, _ = fs.GetString("config")
		explicit = true
	}

	cfg := Default()
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := cfg.applyFlags(fs); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, s := range settings {
		value, ok := lookup(EnvPrefix + s.env)
		if !ok || value == "" {
			continue
		}
		if err := s.set(c, value); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, s.env, value, err)
		}
	}
	return nil
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	for _, s := range settings {
		if !fs.Changed(s.flag) {
			continue
		}
		f := fs.Lookup(s.flag)
		value := f.Value.String()
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			value = strings.Join(sv.GetSlice(), ",")
		}
		if err := s.set(c, value); err != nil {
			return fmt.Errorf("invalid --%s=%q: %w", s.flag, value, err)
		}
	}
	return nil
}

// Validate reports every problem found; an empty result means usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.Camera.Device < 0 {
		problems = append(problems, "camera.device must not be negative")
	}
	if _, err := core.ParsePixelFormat(c.Camera.Format); err != nil {
		problems = append(problems, "camera.format must be bgr or gray")
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		problems = append(problems, "camera.width and camera.height must not be negative")
	}
	if (c.Camera.Width == 0) != (c.Camera.Height == 0) {
		problems = append(problems, "camera.width and camera.height must be set together")
	}

	if c.Stream.FPS < 0 || c.Stream.FPS > 240 {
		problems = append(problems, "stream.fps must be between 0 and 240")
	}
	if c.Stream.WriteTimeoutMS < 0 {
		problems = append(problems, "stream.write_timeout_ms must not be negative")
	}

	validPreviews := map[string]bool{"": true, "fyne": true, "highgui": true, "console": true}
	if !validPreviews[strings.ToLower(strings.TrimSpace(c.Preview.Kind))] {
		problems = append(problems, "preview.kind must be fyne, highgui, or console")
	}

	if c.Effects.ScaleFactor <= 0 || c.Effects.ScaleFactor > 8 {
		problems = append(problems, "effects.scale_factor must be greater than 0 and at most 8")
	}
	seen := make(map[string]bool, len(c.Effects.Order))
	for _, name := range c.Effects.Order {
		if seen[name] {
			problems = append(problems, fmt.Sprintf("effects.order lists %q twice", name))
		}
		seen[name] = true
	}

	return problems
}

func setInt(dst *int, value string) error {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, value string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
