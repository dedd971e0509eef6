package engine

import "strings"

// ErrorCategory is the classification of engine errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryDevice indicates the capture device could not be used (missing, busy, permissions)
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryNegotiation indicates adjacent elements could not agree on a format
	ErrCategoryNegotiation
	// ErrCategoryPlugin indicates a missing or broken plugin
	ErrCategoryPlugin
	// ErrCategoryResource indicates GPU/model/memory resource failures
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryPlugin:
		return "plugin"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ClassifyError categorizes an engine error message and its debug string.
//
// Matching is keyword based, most specific category first: a missing plugin
// usually also mentions negotiation, and device errors also mention the
// resource that failed.
func ClassifyError(msg, debug string) ErrorCategory {
	combined := strings.ToLower(msg + " " + debug)

	switch {
	case containsAny(combined, pluginKeywords):
		return ErrCategoryPlugin
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	default:
		return ErrCategoryUnknown
	}
}

var (
	pluginKeywords = []string{
		"missing plugin",
		"no such element",
		"no element",
		"factory",
		"could not load",
		"cannot open shared object",
	}

	deviceKeywords = []string{
		"/dev/video",
		"v4l2",
		"cannot identify device",
		"could not open device",
		"device is busy",
		"resource busy",
		"permission denied",
	}

	negotiationKeywords = []string{
		"not-negotiated",
		"not negotiated",
		"negotiation",
		"caps",
		"format",
	}

	resourceKeywords = []string{
		"cuda",
		"gpu",
		"out of memory",
		"engine file",
		"model",
		"tensorrt",
		"nvbufsurface",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
