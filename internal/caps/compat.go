package caps

import "fmt"

// memoryLinks is the fixed table of memory localities that may be linked
// directly. Moving data between localities needs an explicit converter
// stage; a link never does it implicitly.
var memoryLinks = map[[2]Memory]bool{
	{MemorySystem, MemorySystem}: true,
	{MemoryNVMM, MemoryNVMM}:     true,
	{MemoryEGL, MemoryEGL}:       true,
}

// Compatible reports whether a stage emitting out may feed a stage
// accepting in.
func Compatible(out, in Contract) bool {
	return Mismatch(out, in) == ""
}

// Mismatch returns the first reason out cannot feed in, or "" when the
// contracts are compatible.
func Mismatch(out, in Contract) string {
	if out.Memory != MemoryAny && in.Memory != MemoryAny && !memoryLinks[[2]Memory{out.Memory, in.Memory}] {
		return fmt.Sprintf("memory %s cannot feed memory %s", out.Memory, in.Memory)
	}
	if !matchString(out.Media, in.Media) {
		return fmt.Sprintf("media %s cannot feed media %s", out.Media, in.Media)
	}
	if !matchString(out.Format, in.Format) {
		return fmt.Sprintf("format %s cannot feed format %s", out.Format, in.Format)
	}
	if !matchInt(out.Width, in.Width) || !matchInt(out.Height, in.Height) {
		return fmt.Sprintf("size %dx%d cannot feed size %dx%d", out.Width, out.Height, in.Width, in.Height)
	}
	if !matchString(out.Framerate, in.Framerate) {
		return fmt.Sprintf("framerate %s cannot feed framerate %s", out.Framerate, in.Framerate)
	}
	return ""
}

// Intersect narrows two compatible contracts into the most specific one.
// The result is undefined for incompatible contracts.
func Intersect(a, b Contract) Contract {
	r := a
	if r.Memory == MemoryAny {
		r.Memory = b.Memory
	}
	if r.Media == "" {
		r.Media = b.Media
	}
	if r.Format == "" {
		r.Format = b.Format
	}
	if r.Width == 0 {
		r.Width = b.Width
	}
	if r.Height == 0 {
		r.Height = b.Height
	}
	if r.Framerate == "" {
		r.Framerate = b.Framerate
	}
	return r
}

func matchString(a, b string) bool {
	return a == "" || b == "" || a == b
}

func matchInt(a, b int) bool {
	return a == 0 || b == 0 || a == b
}
