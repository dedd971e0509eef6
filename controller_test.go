package detectionpipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/aggregator"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/appconfig"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/binder"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/keyfile"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/summarybus"
)

const basicTracker = `[tracker]
tracker-width=640
tracker-height=480
gpu-id=0
`

func testConfig(t *testing.T, tracker string) appconfig.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(tracker), 0o644))

	cfg := appconfig.Default()
	cfg.TrackerConfig = path
	return cfg
}

func newController(t *testing.T, cfg appconfig.Config, eng engine.Engine, opts ...Option) (*Controller, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))}, opts...)
	c, err := New(cfg, eng, opts...)
	require.NoError(t, err)
	return c, &logs
}

func startedController(t *testing.T, m *engine.Memory, opts ...Option) (*Controller, *bytes.Buffer) {
	t.Helper()
	c, logs := newController(t, testConfig(t, basicTracker), m, opts...)
	require.NoError(t, c.Build(context.Background()))
	require.NoError(t, c.Start())
	return c, logs
}

func vehiclesAndPerson() *meta.Batch {
	objs := []meta.Object{
		{ClassID: aggregator.ClassVehicle},
		{ClassID: aggregator.ClassPerson},
		{ClassID: aggregator.ClassVehicle},
	}
	return &meta.Batch{Frames: []*meta.Frame{meta.NewFrame(0, 0, objs, nil)}}
}

func TestController_FullRun(t *testing.T) {
	m := engine.NewMemory()
	c, logs := newController(t, testConfig(t, basicTracker), m)
	assert.Equal(t, StateUnconfigured, c.State())

	require.NoError(t, c.Build(context.Background()))
	assert.Equal(t, StateBuilt, c.State())

	require.NoError(t, c.Start())
	assert.Equal(t, StateRunning, c.State())
	assert.True(t, m.Playing())

	batch := vehiclesAndPerson()
	m.Push(graph.StageOSD, batch)
	require.Len(t, batch.Frames[0].Overlays(), 1)
	assert.Equal(t, "Person = 1 Vehicle = 2 ", batch.Frames[0].Overlays()[0].Text)
	assert.Equal(t, 1, c.Stats().Frames)

	done := make(chan StopReason, 1)
	go func() {
		reason, err := c.Wait(context.Background())
		assert.NoError(t, err)
		done <- reason
	}()

	require.NoError(t, c.ForceStop())
	select {
	case reason := <-done:
		assert.Equal(t, StopEOS, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after ForceStop")
	}
	assert.Equal(t, StateStoppedEOS, c.State())
	assert.NotEmpty(t, m.Elements(), "force-stop does not tear down")

	require.NoError(t, c.Teardown())
	assert.Equal(t, StateTornDown, c.State())
	assert.Empty(t, m.Elements())
	assert.Equal(t, 1, m.StopCount())
	assert.Equal(t, 1, c.Stats().Frames)

	for _, line := range []string{
		"Now playing", "Running...", "End of stream",
		"Returned, stopping playback", "Deleting pipeline",
		"Frame Number = 0 Number of objects = 3 Person Count = 1 Vehicle Count = 2",
		"run_id=" + c.RunID(),
	} {
		assert.Contains(t, logs.String(), line)
	}
}

func TestController_TeardownExactlyOnce(t *testing.T) {
	m := engine.NewMemory()
	c, _ := startedController(t, m)
	require.NoError(t, c.ForceStop())
	_, err := c.Wait(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Teardown())
	assert.ErrorIs(t, c.Teardown(), ErrInvalidTransition)
	assert.Equal(t, 1, m.StopCount())
}

func TestController_IncompatibleContractStaysUnconfigured(t *testing.T) {
	m := engine.NewMemory()
	inject := WithPlanEdit(func(p graph.Plan) (graph.Plan, error) {
		return p.WithContract(graph.StageNVMMCaps, "system-caps", "video/x-raw, format=NV12")
	})
	c, _ := newController(t, testConfig(t, basicTracker), m, inject)

	err := c.Build(context.Background())

	var linkErr *graph.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, StateUnconfigured, c.State())
	assert.Empty(t, m.Elements())
	assert.ErrorIs(t, c.Start(), ErrInvalidTransition)
}

func TestController_EngineError(t *testing.T) {
	m := engine.NewMemory()
	c, logs := startedController(t, m)

	m.Post(engine.Event{
		Kind:   engine.EventError,
		Source: graph.StageSource,
		Err:    errors.New("Cannot identify device '/dev/video0'."),
		Debug:  "v4l2_calls.c(609): gst_v4l2_open (): system error: No such file or directory",
	})

	reason, err := c.Wait(context.Background())
	assert.Equal(t, StopError, reason)

	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.ErrCategoryDevice, engErr.Category)
	assert.Equal(t, graph.StageSource, engErr.Source)
	assert.Equal(t, StateStoppedError, c.State())
	assert.Contains(t, logs.String(), "ERROR from element usb-cam-source")
	assert.Contains(t, logs.String(), "Error details: v4l2_calls.c")

	require.NoError(t, c.Teardown())
	assert.Empty(t, m.Elements())
}

func TestController_WaitCancelQueuesEOS(t *testing.T) {
	m := engine.NewMemory()
	c, _ := startedController(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reason, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopEOS, reason)
	assert.Equal(t, StateStoppedEOS, c.State())
}

func TestController_StartFailure(t *testing.T) {
	eng := refusingEngine{engine.NewMemory()}
	c, _ := newController(t, testConfig(t, basicTracker), eng)
	require.NoError(t, c.Build(context.Background()))

	assert.Error(t, c.Start())
	assert.Equal(t, StateStoppedError, c.State())
	require.NoError(t, c.Teardown())
	assert.Empty(t, eng.Elements())
}

type refusingEngine struct {
	*engine.Memory
}

func (refusingEngine) Start() error { return errors.New("state change failed") }

func TestController_InvalidTransitions(t *testing.T) {
	m := engine.NewMemory()
	c, _ := newController(t, testConfig(t, basicTracker), m)

	assert.ErrorIs(t, c.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, c.ForceStop(), ErrInvalidTransition)
	assert.ErrorIs(t, c.Teardown(), ErrInvalidTransition)
	_, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, c.Build(context.Background()))
	assert.ErrorIs(t, c.Build(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, c.Teardown(), ErrInvalidTransition, "teardown needs a stopped run")
}

func TestController_TrackerBinding(t *testing.T) {
	tests := []struct {
		name         string
		tracker      string
		wantWarnings []string
	}{
		{name: "known keys only", tracker: basicTracker},
		{name: "unknown key", tracker: basicTracker + "foo=1\n", wantWarnings: []string{"foo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := engine.NewMemory()
			c, _ := newController(t, testConfig(t, tt.tracker), m)
			require.NoError(t, c.Build(context.Background()))

			res := c.TrackerBinding()
			require.NotNil(t, res)
			var got []string
			for _, w := range res.Warnings {
				got = append(got, w.Key)
			}
			assert.Equal(t, tt.wantWarnings, got)
			assert.Len(t, res.Properties, 3)

			tracker, ok := m.Element(graph.StageTracker)
			require.True(t, ok)
			v, _ := tracker.Property("tracker-width")
			assert.Equal(t, uint(640), v)
			v, _ = tracker.Property("gpu-id")
			assert.Equal(t, uint(0), v)
			_, ok = tracker.Property("foo")
			assert.False(t, ok)
		})
	}
}

func TestController_TrackerPathsResolveAgainstConfigDir(t *testing.T) {
	m := engine.NewMemory()
	cfg := testConfig(t, basicTracker+"ll-config-file=cfg/iou.yml\nll-lib-file=/opt/nvidia/libnvds_nvmultiobjecttracker.so\n")
	c, _ := newController(t, cfg, m)
	require.NoError(t, c.Build(context.Background()))

	tracker, _ := m.Element(graph.StageTracker)
	v, _ := tracker.Property("ll-config-file")
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.TrackerConfig), "cfg", "iou.yml"), v)
	v, _ = tracker.Property("ll-lib-file")
	assert.Equal(t, "/opt/nvidia/libnvds_nvmultiobjecttracker.so", v)
}

func TestController_TrackerTypeMismatch(t *testing.T) {
	m := engine.NewMemory()
	c, _ := newController(t, testConfig(t, "[tracker]\ntracker-width=wide\n"), m)

	err := c.Build(context.Background())

	var valErr *binder.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "tracker-width", valErr.Key)
	assert.ErrorIs(t, err, keyfile.ErrTypeMismatch)

	var buildErr *graph.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, graph.StageTracker, buildErr.Stage)

	assert.Equal(t, StateUnconfigured, c.State())
	assert.Empty(t, m.Elements())
}

func TestController_MissingTrackerConfig(t *testing.T) {
	m := engine.NewMemory()
	cfg := appconfig.Default()
	cfg.TrackerConfig = filepath.Join(t.TempDir(), "missing.txt")
	c, _ := newController(t, cfg, m)

	err := c.Build(context.Background())
	assert.ErrorIs(t, err, keyfile.ErrConfigNotFound)
	assert.Equal(t, StateUnconfigured, c.State())
	assert.Empty(t, m.Elements(), "nothing is created before the config loads")
}

func TestController_TegraVariant(t *testing.T) {
	m := engine.NewMemory()
	cfg := testConfig(t, basicTracker)
	cfg.Platform = graph.PlatformTegra
	c, _ := newController(t, cfg, m)
	require.NoError(t, c.Build(context.Background()))

	assert.Contains(t, m.Links(), engine.MemoryLink{Up: graph.StageEGLAdapter, Down: graph.StageSink})
}

func TestController_PublishesSummaries(t *testing.T) {
	m := engine.NewMemory()
	bus := summarybus.New()
	latest, err := bus.SubscribeLatest("test")
	require.NoError(t, err)

	c, _ := startedController(t, m, WithPublisher(bus))
	m.Push(graph.StageOSD, vehiclesAndPerson())

	s, ok := latest.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, s.Count("Vehicle"))
	assert.Equal(t, uint64(1), c.Stats().Aggregator.OverlaysAttached)
}

func TestNew_RequiresEngineAndValidConfig(t *testing.T) {
	_, err := New(appconfig.Default(), nil)
	assert.Error(t, err)

	cfg := appconfig.Default()
	cfg.Platform = "amiga"
	_, err = New(cfg, engine.NewMemory())
	assert.ErrorIs(t, err, appconfig.ErrInvalidConfig)
}

func TestEngineError_Message(t *testing.T) {
	err := newEngineError(engine.Event{Kind: engine.EventError, Source: "primary-inference", Err: errors.New("CUDA out of memory")})
	assert.Equal(t, "detection-pipeline: resource error from element primary-inference: CUDA out of memory", err.Error())

	err = newEngineError(engine.Event{Kind: engine.EventError})
	assert.Equal(t, "detection-pipeline: unknown error: unknown engine error", err.Error())
}
