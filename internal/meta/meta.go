// Package meta holds the per-batch inference metadata the probe walks:
// a batch of frames, each frame with the objects detected in it, and the
// overlays attached for the renderer.
package meta

import "errors"

// ErrAllocationFailure is returned when the metadata pool has no room for
// another overlay.
var ErrAllocationFailure = errors.New("meta: overlay allocation failed")

// Object is one detected entity. Produced upstream, never modified here.
type Object struct {
	ClassID    int
	TrackingID uint64
	Confidence float32
	Label      string
}

// Color is an RGBA colour with components in [0,1].
type Color struct {
	R, G, B, A float64
}

var (
	White = Color{R: 1, G: 1, B: 1, A: 1}
	Black = Color{A: 1}
)

// Font describes how overlay text is drawn.
type Font struct {
	Name  string
	Size  uint
	Color Color
}

// Overlay is a text label the on-screen-display stage renders.
type Overlay struct {
	Text       string
	X, Y       int
	Font       Font
	Background *Color // nil means no background box
}

// AttachFunc hands an overlay to the owner of the frame's metadata. It
// returns ErrAllocationFailure when the owner cannot store it.
type AttachFunc func(Overlay) error

// Frame is the metadata of one source frame inside a batch.
type Frame struct {
	SourceID uint32
	FrameNum int
	Objects  []Object
	overlays []Overlay
	attach   AttachFunc
}

// NewFrame builds a frame whose overlays are forwarded to attach. A nil
// attach keeps overlays in memory only.
func NewFrame(sourceID uint32, frameNum int, objects []Object, attach AttachFunc) *Frame {
	return &Frame{
		SourceID: sourceID,
		FrameNum: frameNum,
		Objects:  objects,
		attach:   attach,
	}
}

// Attach appends an overlay to the frame.
func (f *Frame) Attach(o Overlay) error {
	if f.attach != nil {
		if err := f.attach(o); err != nil {
			return err
		}
	}
	f.overlays = append(f.overlays, o)
	return nil
}

// Overlays returns the overlays attached so far.
func (f *Frame) Overlays() []Overlay {
	return f.overlays
}

// Batch is the unit of work passed to a probe: one or more frames that the
// multiplexer batched together.
type Batch struct {
	Frames []*Frame
}
