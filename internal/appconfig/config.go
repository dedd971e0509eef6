// Package appconfig loads the optional HCL pipeline file that parameterizes
// the camera graph: capture device, platform, camera and muxer geometry,
// the inference and tracker config files, and logging.
//
//	device   = "/dev/video1"
//	platform = "tegra"
//
//	camera {
//	  width  = 1280
//	  height = 720
//	  format = "YUY2"
//	}
//
//	tracker {
//	  config_file = "tracker_config.txt"
//	}
//
// Relative config file paths are resolved against the directory of the
// pipeline file.
package appconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/keyfile"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("appconfig: invalid pipeline config")

// Defaults of the single-camera graph.
const (
	DefaultDevice        = "/dev/video0"
	DefaultPlatform      = "dgpu"
	DefaultInferConfig   = "deepstream_test1_cam_config.txt"
	DefaultTrackerConfig = "tracker_config.txt"
)

// Camera is the capture format requested from the device.
type Camera struct {
	Width  int
	Height int
	Format string
}

// Muxer configures nvstreammux.
type Muxer struct {
	Width                int
	Height               int
	BatchSize            int
	BatchedPushTimeoutUS int
	LiveSource           bool
}

// Log configures the process logger.
type Log struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// Config is the resolved pipeline configuration.
type Config struct {
	Device        string
	Platform      string
	Camera        Camera
	Muxer         Muxer
	InferConfig   string
	TrackerConfig string
	Log           Log

	// Source is the pipeline file the config was read from, empty for defaults.
	Source string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device:   DefaultDevice,
		Platform: DefaultPlatform,
		Camera:   Camera{Width: 1280, Height: 720, Format: "YUY2"},
		Muxer: Muxer{
			Width:                640,
			Height:               480,
			BatchSize:            1,
			BatchedPushTimeoutUS: 4000000,
			LiveSource:           true,
		},
		InferConfig:   DefaultInferConfig,
		TrackerConfig: DefaultTrackerConfig,
		Log:           Log{Level: "info", Format: "text"},
	}
}

type fileRoot struct {
	Device   *string      `hcl:"device,optional"`
	Platform *string      `hcl:"platform,optional"`
	Camera   *cameraBlock `hcl:"camera,block"`
	Muxer    *muxerBlock  `hcl:"muxer,block"`
	Infer    *fileBlock   `hcl:"infer,block"`
	Tracker  *fileBlock   `hcl:"tracker,block"`
	Log      *logBlock    `hcl:"log,block"`
}

type cameraBlock struct {
	Width  *int    `hcl:"width,optional"`
	Height *int    `hcl:"height,optional"`
	Format *string `hcl:"format,optional"`
}

type muxerBlock struct {
	Width                *int  `hcl:"width,optional"`
	Height               *int  `hcl:"height,optional"`
	BatchSize            *int  `hcl:"batch_size,optional"`
	BatchedPushTimeoutUS *int  `hcl:"batched_push_timeout_us,optional"`
	LiveSource           *bool `hcl:"live_source,optional"`
}

type fileBlock struct {
	ConfigFile string `hcl:"config_file"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load reads the pipeline file at path on top of Default and validates it.
func Load(path string) (Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("appconfig: resolve %s: %w", path, err)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return Config{}, fmt.Errorf("appconfig: read pipeline file: %w", err)
	}

	cfg, err := Parse(src, abs)
	if err != nil {
		return Config{}, err
	}
	slog.Debug("appconfig: pipeline file loaded", "path", abs, "platform", cfg.Platform, "device", cfg.Device)
	return cfg, nil
}

// Parse decodes HCL source. filename is used for diagnostics and as the
// base for relative paths.
func Parse(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("appconfig: failed to parse %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return Config{}, fmt.Errorf("appconfig: failed to decode %s: %w", filename, diags)
	}

	cfg := Default()
	cfg.Source = filename
	root.apply(&cfg, filepath.Dir(filename))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (r *fileRoot) apply(cfg *Config, dir string) {
	setString(&cfg.Device, r.Device)
	setString(&cfg.Platform, r.Platform)

	if c := r.Camera; c != nil {
		setInt(&cfg.Camera.Width, c.Width)
		setInt(&cfg.Camera.Height, c.Height)
		setString(&cfg.Camera.Format, c.Format)
	}
	if m := r.Muxer; m != nil {
		setInt(&cfg.Muxer.Width, m.Width)
		setInt(&cfg.Muxer.Height, m.Height)
		setInt(&cfg.Muxer.BatchSize, m.BatchSize)
		setInt(&cfg.Muxer.BatchedPushTimeoutUS, m.BatchedPushTimeoutUS)
		if m.LiveSource != nil {
			cfg.Muxer.LiveSource = *m.LiveSource
		}
	}
	if r.Infer != nil {
		cfg.InferConfig = keyfile.ResolvePath(dir, r.Infer.ConfigFile)
	}
	if r.Tracker != nil {
		cfg.TrackerConfig = keyfile.ResolvePath(dir, r.Tracker.ConfigFile)
	}
	if l := r.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		setString(&cfg.Log.Format, l.Format)
	}
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Device != "", "device must be set")
	check(c.Platform == "dgpu" || c.Platform == "tegra", "platform %q must be dgpu or tegra", c.Platform)
	check(c.Camera.Width > 0 && c.Camera.Height > 0, "camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height)
	check(c.Camera.Format != "", "camera format must be set")
	check(c.Muxer.Width > 0 && c.Muxer.Height > 0, "muxer size %dx%d must be positive", c.Muxer.Width, c.Muxer.Height)
	check(c.Muxer.BatchSize >= 1, "muxer batch_size %d must be at least 1", c.Muxer.BatchSize)
	check(c.Muxer.BatchedPushTimeoutUS >= 0, "muxer batched_push_timeout_us %d must not be negative", c.Muxer.BatchedPushTimeoutUS)
	check(c.InferConfig != "", "infer config_file must be set")
	check(c.TrackerConfig != "", "tracker config_file must be set")
	check(validLevel(c.Log.Level), "log level %q must be debug, info, warn or error", c.Log.Level)
	check(c.Log.Format == "text" || c.Log.Format == "json", "log format %q must be text or json", c.Log.Format)

	return errors.Join(errs...)
}

func validLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
