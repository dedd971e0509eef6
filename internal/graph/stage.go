package graph

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/caps"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
)

// StageKind is the capability type of a stage.
type StageKind int

const (
	KindSource StageKind = iota
	KindFormatFilter
	KindTransform
	KindJunction // fan-in: fed through a requested input slot
	KindCompute
	KindRenderer
	KindAdapter
	KindSink
)

func (k StageKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFormatFilter:
		return "format-filter"
	case KindTransform:
		return "transform"
	case KindJunction:
		return "junction"
	case KindCompute:
		return "compute"
	case KindRenderer:
		return "renderer"
	case KindAdapter:
		return "adapter"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Prop is a property assigned to a stage when it is created.
type Prop struct {
	Name  string
	Value any
}

// Stage is one created element plus the format contracts on its input and
// output. Emits is only meaningful once the stage has an upstream.
type Stage struct {
	Name    string
	Kind    StageKind
	Factory string
	Element engine.Element
	Accepts caps.Contract
	Emits   caps.Contract

	props    []Prop
	upstream *Stage
	linked   bool
}

// Upstream returns the stage feeding this one, nil for sources and
// unlinked stages.
func (s *Stage) Upstream() *Stage {
	return s.upstream
}

func (s *Stage) String() string {
	return fmt.Sprintf("%s %q (%s)", s.Kind, s.Name, s.Factory)
}

func (s *Stage) intProp(name string) int {
	for _, p := range s.props {
		if p.Name != name {
			continue
		}
		switch v := p.Value.(type) {
		case int:
			return v
		case uint:
			return int(v)
		}
	}
	return 0
}

// transfer describes how a factory narrows contracts: what it accepts and
// what it emits for a given input.
type transfer struct {
	accepts func(s *Stage) caps.Contract
	emits   func(s *Stage, in caps.Contract) caps.Contract
}

const rawVideo = "video/x-raw"

func fixed(c caps.Contract) func(*Stage) caps.Contract {
	return func(*Stage) caps.Contract { return c }
}

func passthrough(_ *Stage, in caps.Contract) caps.Contract {
	return in
}

// transfers lists the factories this pipeline uses. Any other factory
// accepts and emits anything its neighbours agree on.
var transfers = map[string]transfer{
	"v4l2src": {
		accepts: fixed(caps.Any),
		emits: func(*Stage, caps.Contract) caps.Contract {
			return caps.Contract{Media: rawVideo, Memory: caps.MemorySystem}
		},
	},
	"capsfilter": {
		accepts: func(s *Stage) caps.Contract {
			for _, p := range s.props {
				if c, ok := p.Value.(caps.Contract); ok && p.Name == "caps" {
					return c
				}
			}
			return caps.Any
		},
		emits: func(s *Stage, in caps.Contract) caps.Contract {
			return caps.Intersect(s.Accepts, in)
		},
	},
	// videoconvert keeps geometry and leaves the format to the next filter.
	"videoconvert": {
		accepts: fixed(caps.Contract{Media: rawVideo, Memory: caps.MemorySystem}),
		emits: func(_ *Stage, in caps.Contract) caps.Contract {
			return caps.Contract{Media: rawVideo, Width: in.Width, Height: in.Height, Framerate: in.Framerate, Memory: caps.MemorySystem}
		},
	},
	// nvvideoconvert moves between system and device memory in either
	// direction; the following filter pins the locality.
	"nvvideoconvert": {
		accepts: fixed(caps.Contract{Media: rawVideo}),
		emits: func(_ *Stage, in caps.Contract) caps.Contract {
			return caps.Contract{Media: rawVideo, Width: in.Width, Height: in.Height, Framerate: in.Framerate}
		},
	},
	"nvstreammux": {
		accepts: fixed(caps.Contract{Media: rawVideo, Memory: caps.MemoryNVMM}),
		emits: func(s *Stage, in caps.Contract) caps.Contract {
			return caps.Contract{Media: rawVideo, Format: in.Format, Width: s.intProp("width"), Height: s.intProp("height"), Memory: caps.MemoryNVMM}
		},
	},
	"nvinfer": {
		accepts: fixed(caps.Contract{Media: rawVideo, Memory: caps.MemoryNVMM}),
		emits:   passthrough,
	},
	"nvtracker": {
		accepts: fixed(caps.Contract{Media: rawVideo, Memory: caps.MemoryNVMM}),
		emits:   passthrough,
	},
	"nvdsosd": {
		accepts: fixed(caps.Contract{Media: rawVideo, Format: "RGBA", Memory: caps.MemoryNVMM}),
		emits:   passthrough,
	},
	"nvegltransform": {
		accepts: fixed(caps.Contract{Media: rawVideo, Format: "RGBA", Memory: caps.MemoryNVMM}),
		emits: func(_ *Stage, in caps.Contract) caps.Contract {
			in.Memory = caps.MemoryEGL
			return in
		},
	},
	"nveglglessink": {
		accepts: fixed(caps.Any),
		emits:   func(*Stage, caps.Contract) caps.Contract { return caps.Any },
	},
}

var generic = transfer{
	accepts: fixed(caps.Any),
	emits:   passthrough,
}

func transferFor(factory string) transfer {
	if t, ok := transfers[factory]; ok {
		return t
	}
	return generic
}
