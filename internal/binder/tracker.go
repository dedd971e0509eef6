package binder

// TrackerGroup is the key-file group holding nvtracker settings.
const TrackerGroup = "tracker"

// Keys recognized in the tracker group.
const (
	KeyTrackerWidth       = "tracker-width"
	KeyTrackerHeight      = "tracker-height"
	KeyGPUID              = "gpu-id"
	KeyLLConfigFile       = "ll-config-file"
	KeyLLLibFile          = "ll-lib-file"
	KeyEnableBatchProcess = "enable-batch-process"
)

// TrackerSetters returns the setter table for the nvtracker stage.
// nvtracker declares width, height and gpu-id as unsigned properties.
func TrackerSetters() Setters {
	return Setters{
		KeyTrackerWidth:       {Property: "tracker-width", Kind: KindUint},
		KeyTrackerHeight:      {Property: "tracker-height", Kind: KindUint},
		KeyGPUID:              {Property: "gpu-id", Kind: KindUint},
		KeyLLConfigFile:       {Property: "ll-config-file", Kind: KindPath},
		KeyLLLibFile:          {Property: "ll-lib-file", Kind: KindPath},
		KeyEnableBatchProcess: {Property: "enable-batch-process", Kind: KindBool},
	}
}
