//go:build deepstream

package nvds

/*
#cgo pkg-config: gstreamer-1.0
#cgo CFLAGS: -I/opt/nvidia/deepstream/deepstream/sources/includes
#cgo LDFLAGS: -L/opt/nvidia/deepstream/deepstream/lib -lnvdsgst_meta -lnvds_meta

#include <stdlib.h>
#include <gst/gst.h>
#include "gstnvdsmeta.h"
#include "nvdsmeta.h"

static NvDsBatchMeta *batch_meta_of(void *buf) {
	return gst_buffer_get_nvds_batch_meta((GstBuffer *) buf);
}

static void *list_next(void *l) { return ((GList *) l)->next; }
static void *list_data(void *l) { return ((GList *) l)->data; }

// add_text acquires a display meta from the batch pool and attaches one
// text label to the frame. Returns -1 when the pool is exhausted.
static int add_text(NvDsBatchMeta *batch, NvDsFrameMeta *frame,
		const char *text, int x, int y, char *font, unsigned int size,
		double fr, double fg, double fb, double fa,
		int set_bg, double br, double bg, double bb, double ba) {
	NvDsDisplayMeta *dm = nvds_acquire_display_meta_from_pool(batch);
	if (dm == NULL) {
		return -1;
	}
	NvOSD_TextParams *t = &dm->text_params[0];
	dm->num_labels = 1;
	t->display_text = g_strdup(text);
	t->x_offset = x;
	t->y_offset = y;
	t->font_params.font_name = font;
	t->font_params.font_size = size;
	t->font_params.font_color.red = fr;
	t->font_params.font_color.green = fg;
	t->font_params.font_color.blue = fb;
	t->font_params.font_color.alpha = fa;
	t->set_bg_clr = set_bg;
	t->text_bg_clr.red = br;
	t->text_bg_clr.green = bg;
	t->text_bg_clr.blue = bb;
	t->text_bg_clr.alpha = ba;
	nvds_add_display_meta_to_frame(frame, dm);
	return 0;
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

// Available reports whether DeepStream metadata can be read.
const Available = true

// fonts holds C copies of font names for the life of the process; the
// renderer keeps the pointer without owning it.
var (
	fontsMu sync.Mutex
	fonts   = map[string]*C.char{}
)

func fontName(name string) *C.char {
	fontsMu.Lock()
	defer fontsMu.Unlock()

	p, ok := fonts[name]
	if !ok {
		p = C.CString(name)
		fonts[name] = p
	}
	return p
}

// ReadBatch converts the NvDsBatchMeta of the GstBuffer at buf. The
// returned frames attach overlays straight into DeepStream metadata and
// must not be used after the probe returns.
func ReadBatch(buf unsafe.Pointer) (*meta.Batch, error) {
	bm := C.batch_meta_of(buf)
	if bm == nil {
		return nil, ErrNoBatchMeta
	}

	batch := &meta.Batch{}
	for l := unsafe.Pointer(bm.frame_meta_list); l != nil; l = C.list_next(l) {
		fm := (*C.NvDsFrameMeta)(C.list_data(l))

		var objects []meta.Object
		for o := unsafe.Pointer(fm.obj_meta_list); o != nil; o = C.list_next(o) {
			om := (*C.NvDsObjectMeta)(C.list_data(o))
			objects = append(objects, meta.Object{
				ClassID:    int(om.class_id),
				TrackingID: uint64(om.object_id),
				Confidence: float32(om.confidence),
				Label:      C.GoString(&om.obj_label[0]),
			})
		}

		batch.Frames = append(batch.Frames, meta.NewFrame(
			uint32(fm.source_id),
			int(fm.frame_num),
			objects,
			attacher(bm, fm),
		))
	}
	return batch, nil
}

func attacher(bm *C.NvDsBatchMeta, fm *C.NvDsFrameMeta) meta.AttachFunc {
	return func(o meta.Overlay) error {
		text := C.CString(o.Text)
		defer C.free(unsafe.Pointer(text))

		var bg meta.Color
		setBG := 0
		if o.Background != nil {
			bg = *o.Background
			setBG = 1
		}

		rc := C.add_text(bm, fm, text, C.int(o.X), C.int(o.Y),
			fontName(o.Font.Name), C.uint(o.Font.Size),
			C.double(o.Font.Color.R), C.double(o.Font.Color.G), C.double(o.Font.Color.B), C.double(o.Font.Color.A),
			C.int(setBG), C.double(bg.R), C.double(bg.G), C.double(bg.B), C.double(bg.A))
		if rc != 0 {
			return meta.ErrAllocationFailure
		}
		return nil
	}
}
