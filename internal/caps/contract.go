// Package caps describes the media layout expected or produced at a point
// of the pipeline and decides, from a fixed table, whether two layouts may
// be linked.
package caps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Memory is where frame data lives.
type Memory int

const (
	// MemoryAny matches every locality.
	MemoryAny Memory = iota
	// MemorySystem is plain CPU memory.
	MemorySystem
	// MemoryNVMM is NVIDIA device memory (batched surfaces).
	MemoryNVMM
	// MemoryEGL is an EGLImage handle (Jetson display path).
	MemoryEGL
)

func (m Memory) String() string {
	switch m {
	case MemoryAny:
		return "any"
	case MemorySystem:
		return "system"
	case MemoryNVMM:
		return "NVMM"
	case MemoryEGL:
		return "EGLImage"
	default:
		return "unknown"
	}
}

// feature is the caps-feature spelling of the memory type.
func (m Memory) feature() string {
	switch m {
	case MemoryNVMM:
		return "memory:NVMM"
	case MemoryEGL:
		return "memory:EGLImage"
	default:
		return ""
	}
}

// ErrInvalidContract is returned for caps strings that cannot be parsed.
var ErrInvalidContract = errors.New("caps: invalid format contract")

// Contract is an explicit media layout. Zero values mean "any".
type Contract struct {
	Media     string // e.g. video/x-raw
	Format    string // pixel format, e.g. NV12
	Width     int
	Height    int
	Framerate string // fraction, e.g. 30/1
	Memory    Memory
}

// Any matches every contract.
var Any = Contract{}

// IsAny reports whether c places no constraint at all.
func (c Contract) IsAny() bool {
	return c == Any
}

// String renders c as a GStreamer caps string.
func (c Contract) String() string {
	if c.IsAny() {
		return "ANY"
	}

	var b strings.Builder
	media := c.Media
	if media == "" {
		media = "video/x-raw"
	}
	b.WriteString(media)
	if f := c.Memory.feature(); f != "" {
		b.WriteString("(" + f + ")")
	}
	if c.Format != "" {
		b.WriteString(", format=" + c.Format)
	}
	if c.Width > 0 {
		b.WriteString(", width=" + strconv.Itoa(c.Width))
	}
	if c.Height > 0 {
		b.WriteString(", height=" + strconv.Itoa(c.Height))
	}
	if c.Framerate != "" {
		b.WriteString(", framerate=" + c.Framerate)
	}
	return b.String()
}

// Parse reads a caps string such as
// "video/x-raw(memory:NVMM), format=NV12, width=1280, height=720".
//
// A media type without a memory feature is plain system memory; "ANY"
// yields the unconstrained contract.
func Parse(s string) (Contract, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Contract{}, fmt.Errorf("%w: empty caps string", ErrInvalidContract)
	}
	if s == "ANY" {
		return Any, nil
	}

	fields := strings.Split(s, ",")
	c := Contract{Memory: MemorySystem}

	head := strings.TrimSpace(fields[0])
	if i := strings.IndexByte(head, '('); i >= 0 {
		if !strings.HasSuffix(head, ")") {
			return Contract{}, fmt.Errorf("%w: unterminated feature in %q", ErrInvalidContract, head)
		}
		switch feature := head[i+1 : len(head)-1]; feature {
		case "memory:NVMM":
			c.Memory = MemoryNVMM
		case "memory:EGLImage":
			c.Memory = MemoryEGL
		case "memory:SystemMemory":
			c.Memory = MemorySystem
		default:
			return Contract{}, fmt.Errorf("%w: unsupported caps feature %q", ErrInvalidContract, feature)
		}
		head = head[:i]
	}
	if !strings.Contains(head, "/") {
		return Contract{}, fmt.Errorf("%w: media type %q", ErrInvalidContract, head)
	}
	c.Media = head

	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return Contract{}, fmt.Errorf("%w: field %q has no value", ErrInvalidContract, field)
		}
		key = strings.TrimSpace(key)
		value = stripType(strings.TrimSpace(value))

		switch key {
		case "format":
			c.Format = value
		case "width", "height":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Contract{}, fmt.Errorf("%w: %s=%q", ErrInvalidContract, key, value)
			}
			if key == "width" {
				c.Width = n
			} else {
				c.Height = n
			}
		case "framerate":
			if !strings.Contains(value, "/") {
				return Contract{}, fmt.Errorf("%w: framerate=%q is not a fraction", ErrInvalidContract, value)
			}
			c.Framerate = value
		default:
			return Contract{}, fmt.Errorf("%w: unsupported field %q", ErrInvalidContract, key)
		}
	}

	return c, nil
}

// MustParse is Parse for package-level literals.
func MustParse(s string) Contract {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// stripType drops a GStreamer type annotation such as "(int)" or "(string)".
func stripType(v string) string {
	if strings.HasPrefix(v, "(") {
		if i := strings.IndexByte(v, ')'); i > 0 {
			return strings.TrimSpace(v[i+1:])
		}
	}
	return v
}
