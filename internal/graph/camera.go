package graph

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
)

// Variant selects the fixed graph shape for a target platform.
type Variant int

const (
	// VariantDirect feeds the renderer straight into the display sink (dGPU).
	VariantDirect Variant = iota
	// VariantEGLAdapter inserts nvegltransform before the sink (Jetson).
	VariantEGLAdapter
)

func (v Variant) String() string {
	switch v {
	case VariantDirect:
		return "direct"
	case VariantEGLAdapter:
		return "egl-adapter"
	default:
		return "unknown"
	}
}

// Platforms understood by VariantFor.
const (
	PlatformDGPU  = "dgpu"
	PlatformTegra = "tegra"
)

// VariantFor maps a platform name to its graph variant.
func VariantFor(platform string) (Variant, error) {
	switch platform {
	case PlatformDGPU, "":
		return VariantDirect, nil
	case PlatformTegra:
		return VariantEGLAdapter, nil
	default:
		return 0, fmt.Errorf("graph: unknown platform %q (want %s or %s)", platform, PlatformDGPU, PlatformTegra)
	}
}

// Stage names of the camera graph.
const (
	StageSource      = "usb-cam-source"
	StageSourceCaps  = "src-caps"
	StageConvert     = "convert-src"
	StageNV12Caps    = "nv12-caps"
	StageNVConvert   = "nvvidconv-src"
	StageNVMMCaps    = "nvmm-caps"
	StageMuxer       = "stream-muxer"
	StageInfer       = "primary-inference"
	StageTracker     = "tracker"
	StageTrackerCaps = "tracker-caps"
	StageOSDConvert  = "nvvidconv-osd"
	StageRGBACaps    = "rgba-caps"
	StageOSD         = "onscreen-display"
	StageEGLAdapter  = "egl-transform"
	StageSink        = "egl-sink"

	// MuxerSlot is the single input slot requested on the muxer.
	MuxerSlot = "sink_0"
)

// CameraOptions parameterizes the camera graph.
type CameraOptions struct {
	Device       string
	CameraWidth  int
	CameraHeight int
	CameraFormat string

	MuxerWidth         int
	MuxerHeight        int
	BatchSize          int
	BatchedPushTimeout int // microseconds
	LiveSource         bool

	InferConfig string
	Variant     Variant

	// ConfigureTracker applies the tracker settings to the tracker stage.
	ConfigureTracker func(el engine.Element) error
}

// CameraPlan returns the single-camera detection graph:
//
//	v4l2src → caps → videoconvert → caps(NV12) → nvvideoconvert →
//	caps(NVMM NV12) ⇒ nvstreammux.sink_0 → nvinfer → nvtracker →
//	caps(NVMM NV12) → nvvideoconvert → caps(NVMM RGBA) → nvdsosd →
//	[nvegltransform] → nveglglessink
//
// The probe is installed on the sink pad of nvdsosd, where every buffer
// already carries inference and tracker metadata.
func CameraPlan(opts CameraOptions) Plan {
	steps := []Step{
		{Kind: KindSource, Factory: "v4l2src", Name: StageSource,
			Props: []Prop{{Name: "device", Value: opts.Device}}},
		{Kind: KindFormatFilter, Name: StageSourceCaps,
			Contract: fmt.Sprintf("video/x-raw, width=%d, height=%d, format=%s", opts.CameraWidth, opts.CameraHeight, opts.CameraFormat)},
		{Kind: KindTransform, Factory: "videoconvert", Name: StageConvert},
		{Kind: KindFormatFilter, Name: StageNV12Caps, Contract: "video/x-raw, format=NV12"},
		{Kind: KindTransform, Factory: "nvvideoconvert", Name: StageNVConvert},
		{Kind: KindFormatFilter, Name: StageNVMMCaps, Contract: "video/x-raw(memory:NVMM), format=NV12"},
		{Kind: KindJunction, Factory: "nvstreammux", Name: StageMuxer, Slot: MuxerSlot,
			Props: []Prop{
				{Name: "width", Value: opts.MuxerWidth},
				{Name: "height", Value: opts.MuxerHeight},
				{Name: "batch-size", Value: opts.BatchSize},
				{Name: "batched-push-timeout", Value: opts.BatchedPushTimeout},
				{Name: "live-source", Value: opts.LiveSource},
			}},
		{Kind: KindCompute, Factory: "nvinfer", Name: StageInfer,
			Props: []Prop{{Name: "config-file-path", Value: opts.InferConfig}}},
		{Kind: KindCompute, Factory: "nvtracker", Name: StageTracker, Configure: opts.ConfigureTracker},
		{Kind: KindFormatFilter, Name: StageTrackerCaps, Contract: "video/x-raw(memory:NVMM), format=NV12"},
		{Kind: KindTransform, Factory: "nvvideoconvert", Name: StageOSDConvert},
		{Kind: KindFormatFilter, Name: StageRGBACaps, Contract: "video/x-raw(memory:NVMM), format=RGBA"},
		{Kind: KindRenderer, Factory: "nvdsosd", Name: StageOSD, Probe: "sink"},
	}

	if opts.Variant == VariantEGLAdapter {
		steps = append(steps, Step{Kind: KindAdapter, Factory: "nvegltransform", Name: StageEGLAdapter})
	}
	steps = append(steps, Step{Kind: KindSink, Factory: "nveglglessink", Name: StageSink})

	return Plan{Name: "dstest1-cam-pipeline", Variant: opts.Variant, Steps: steps}
}
