//go:build !deepstream

package nvds

import (
	"unsafe"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

// Available reports whether DeepStream metadata can be read.
const Available = false

// ReadBatch always fails with ErrUnsupported.
func ReadBatch(buf unsafe.Pointer) (*meta.Batch, error) {
	return nil, ErrUnsupported
}
