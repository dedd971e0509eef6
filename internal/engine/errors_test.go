package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		debug string
		want  ErrorCategory
	}{
		{
			name:  "missing device",
			msg:   "Cannot identify device '/dev/video3'.",
			debug: "../sys/v4l2/v4l2_calls.c(609): gst_v4l2_open (): /GstPipeline:dstest-cam/GstV4l2Src:usb-cam-source",
			want:  ErrCategoryDevice,
		},
		{
			name: "busy device",
			msg:  "Device '/dev/video0' is busy",
			want: ErrCategoryDevice,
		},
		{
			name:  "not negotiated",
			msg:   "Internal data stream error.",
			debug: "streaming stopped, reason not-negotiated (-4)",
			want:  ErrCategoryNegotiation,
		},
		{
			name: "missing plugin wins over caps",
			msg:  "missing plugin for caps video/x-raw(memory:NVMM)",
			want: ErrCategoryPlugin,
		},
		{
			name:  "model engine",
			msg:   "Failed to create NvDsInferContext instance",
			debug: "Failed to build TensorRT engine from model file",
			want:  ErrCategoryResource,
		},
		{
			name: "unclassified",
			msg:  "something odd happened",
			want: ErrCategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.msg, tt.debug))
		})
	}
}

func TestErrorCategory_String(t *testing.T) {
	assert.Equal(t, "device", ErrCategoryDevice.String())
	assert.Equal(t, "negotiation", ErrCategoryNegotiation.String())
	assert.Equal(t, "plugin", ErrCategoryPlugin.String())
	assert.Equal(t, "resource", ErrCategoryResource.String())
	assert.Equal(t, "unknown", ErrCategoryUnknown.String())
}
