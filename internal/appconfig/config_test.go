package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/dev/video0", cfg.Device)
	assert.Equal(t, Camera{Width: 1280, Height: 720, Format: "YUY2"}, cfg.Camera)
	assert.Equal(t, Muxer{Width: 640, Height: 480, BatchSize: 1, BatchedPushTimeoutUS: 4000000, LiveSource: true}, cfg.Muxer)
	assert.Equal(t, "tracker_config.txt", cfg.TrackerConfig)
}

func TestLoad_OverridesAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.hcl")
	src := `
device   = "/dev/video2"
platform = "tegra"

camera {
  width  = 640
  height = 480
}

muxer {
  batch_size  = 2
  live_source = false
}

infer {
  config_file = "models/pgie.txt"
}

tracker {
  config_file = "/etc/deepstream/tracker.txt"
}

log {
  level  = "debug"
  format = "json"
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/video2", cfg.Device)
	assert.Equal(t, "tegra", cfg.Platform)
	assert.Equal(t, Camera{Width: 640, Height: 480, Format: "YUY2"}, cfg.Camera)
	assert.Equal(t, 2, cfg.Muxer.BatchSize)
	assert.False(t, cfg.Muxer.LiveSource)
	assert.Equal(t, 640, cfg.Muxer.Width, "unset muxer fields keep their defaults")
	assert.Equal(t, filepath.Join(dir, "models/pgie.txt"), cfg.InferConfig)
	assert.Equal(t, "/etc/deepstream/tracker.txt", cfg.TrackerConfig)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, path, cfg.Source)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "syntax", src: `camera {`, want: "failed to parse"},
		{name: "unknown attribute", src: `fps = 30`, want: "failed to decode"},
		{name: "wrong type", src: `camera { width = "wide" }`, want: "failed to decode"},
		{name: "bad platform", src: `platform = "amiga"`, want: "platform"},
		{name: "bad batch", src: `muxer { batch_size = 0 }`, want: "batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "/tmp/pipeline.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_JoinsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Platform = "x"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 2, strings.Count(err.Error(), "invalid pipeline config"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Log{Level: "warn", Format: "json"}, &buf)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
