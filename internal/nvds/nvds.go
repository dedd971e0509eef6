// Package nvds reads the DeepStream batch metadata (NvDsBatchMeta) that
// nvstreammux, nvinfer and nvtracker attach to every GstBuffer, and lets
// the probe attach display metadata back to each frame.
//
// The reader needs the DeepStream SDK and is only compiled with the
// deepstream build tag; without it ReadBatch reports ErrUnsupported.
package nvds

import "errors"

var (
	// ErrUnsupported is returned when the binary was built without DeepStream.
	ErrUnsupported = errors.New("nvds: built without deepstream support")
	// ErrNoBatchMeta is returned for buffers that carry no NvDsBatchMeta.
	ErrNoBatchMeta = errors.New("nvds: buffer has no batch metadata")
)
