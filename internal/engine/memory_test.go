package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

func TestMemory_CreateAndLink(t *testing.T) {
	m := NewMemory()

	src, err := m.CreateElement("v4l2src", "source")
	require.NoError(t, err)
	sink, err := m.CreateElement("fakesink", "sink")
	require.NoError(t, err)

	require.NoError(t, m.Link(src, sink))
	assert.Equal(t, []string{"source", "sink"}, m.Elements())
	assert.Equal(t, []MemoryLink{{Up: "source", Down: "sink"}}, m.Links())

	_, err = m.CreateElement("fakesink", "sink")
	assert.Error(t, err, "duplicate names are refused")
}

func TestMemory_UnknownFactory(t *testing.T) {
	m := NewMemory()
	m.Factories = map[string]bool{"v4l2src": true}

	_, err := m.CreateElement("nvinfer", "primary-nvinference-engine")
	assert.ErrorIs(t, err, ErrNoSuchFactory)
}

func TestMemory_Slots(t *testing.T) {
	m := NewMemory()
	up, _ := m.CreateElement("capsfilter", "nvmm-caps")
	mux, _ := m.CreateElement("nvstreammux", "stream-muxer")

	slot, err := m.RequestSlot(mux, "sink_0")
	require.NoError(t, err)
	assert.Equal(t, "sink_0", slot.Name())
	assert.Equal(t, "stream-muxer", slot.Owner().Name())

	_, err = m.RequestSlot(mux, "sink_0")
	assert.ErrorIs(t, err, ErrSlotRefused)

	require.NoError(t, m.LinkSlot(up, slot))
	assert.Equal(t, MemoryLink{Up: "nvmm-caps", Down: "stream-muxer", Slot: "sink_0"}, m.Links()[0])

	require.NoError(t, m.ReleaseSlot(slot))
	assert.Zero(t, m.Slots())
	assert.ErrorIs(t, m.LinkSlot(up, slot), ErrLinkRefused)
}

func TestMemory_RemoveDropsLinks(t *testing.T) {
	m := NewMemory()
	a, _ := m.CreateElement("v4l2src", "a")
	b, _ := m.CreateElement("capsfilter", "b")
	require.NoError(t, m.Link(a, b))

	require.NoError(t, m.Remove(b))
	assert.Equal(t, []string{"a"}, m.Elements())
	assert.Empty(t, m.Links())
	assert.Error(t, m.Link(a, b), "removed element is no longer owned")
}

func TestMemory_ProbesRunOnPush(t *testing.T) {
	m := NewMemory()
	osd, _ := m.CreateElement("nvdsosd", "onscreendisplay")

	var seen int
	require.NoError(t, m.AddProbe(osd, "sink", func(b *meta.Batch) { seen += len(b.Frames) }))

	m.Push("onscreendisplay", &meta.Batch{Frames: []*meta.Frame{meta.NewFrame(0, 0, nil, nil)}})
	m.Push("nobody", &meta.Batch{})
	assert.Equal(t, 1, seen)
}

func TestMemory_EOSRequiresPlaying(t *testing.T) {
	m := NewMemory()
	assert.ErrorIs(t, m.SendEOS(), ErrNotPlaying)

	require.NoError(t, m.Start())
	require.NoError(t, m.SendEOS())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := m.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventEOS, ev.Kind)

	require.NoError(t, m.Stop())
	assert.False(t, m.Playing())
	assert.Equal(t, 1, m.StopCount())
}

func TestMemory_NextHonoursContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
