package gstengine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New("gstengine-test", opts...)
	if err != nil {
		t.Skipf("Skipping test: GStreamer not available: %v", err)
	}
	probe, err := e.CreateElement("fakesrc", "probe-fakesrc")
	if err != nil {
		t.Skipf("Skipping test: coreelements plugin not available: %v", err)
	}
	require.NoError(t, e.Remove(probe))
	return e
}

func TestEngine_RunsToEOS(t *testing.T) {
	var batches atomic.Int64
	e := newTestEngine(t, WithBatchReader(func(unsafe.Pointer) (*meta.Batch, error) {
		return &meta.Batch{Frames: []*meta.Frame{meta.NewFrame(0, 0, nil, nil)}}, nil
	}))

	src, err := e.CreateElement("fakesrc", "src")
	require.NoError(t, err)
	require.NoError(t, src.SetProperty("num-buffers", 5))
	ident, err := e.CreateElement("identity", "ident")
	require.NoError(t, err)
	sink, err := e.CreateElement("fakesink", "sink")
	require.NoError(t, err)

	require.NoError(t, e.Link(src, ident))
	require.NoError(t, e.Link(ident, sink))
	require.NoError(t, e.AddProbe(ident, "sink", func(b *meta.Batch) { batches.Add(int64(len(b.Frames))) }))

	require.NoError(t, e.Start())
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev, err := e.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.EventEOS, ev.Kind)
	assert.Equal(t, int64(5), batches.Load())
	assert.Equal(t, uint64(5), e.Stats().Buffers)
}

func TestEngine_SendEOS(t *testing.T) {
	e := newTestEngine(t)
	assert.ErrorIs(t, e.SendEOS(), engine.ErrNotPlaying)

	src, err := e.CreateElement("fakesrc", "live")
	require.NoError(t, err)
	require.NoError(t, src.SetProperty("is-live", true))
	sink, err := e.CreateElement("fakesink", "sink")
	require.NoError(t, err)
	require.NoError(t, e.Link(src, sink))

	require.NoError(t, e.Start())
	defer e.Stop()
	require.NoError(t, e.SendEOS())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := e.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.EventEOS, ev.Kind)
}

func TestEngine_Errors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateElement("no-such-element-factory", "x")
	assert.ErrorIs(t, err, engine.ErrNoSuchFactory)

	sink, err := e.CreateElement("fakesink", "sink")
	require.NoError(t, err)
	assert.ErrorIs(t, sink.SetProperty("no-such-property", 1), engine.ErrUnknownProperty)
}

func TestEngine_RequestSlot(t *testing.T) {
	e := newTestEngine(t)

	src, err := e.CreateElement("fakesrc", "src")
	require.NoError(t, err)
	funnel, err := e.CreateElement("funnel", "fan-in")
	require.NoError(t, err)

	slot, err := e.RequestSlot(funnel, "sink_0")
	require.NoError(t, err)
	assert.Equal(t, "sink_0", slot.Name())
	require.NoError(t, e.LinkSlot(src, slot))
	require.NoError(t, e.ReleaseSlot(slot))

	require.NoError(t, e.Remove(funnel))
	require.NoError(t, e.Remove(src))
}

func TestEngine_NextHonoursContext(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := e.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
