package imagerecord

// Resource names one of the lazily loaded parts of an image record
type Resource int

const (
	ResourceImage Resource = iota
	ResourceKeypoints
	ResourceDescriptors
	ResourceMatches

	resourceCount
)

func (r Resource) String() string {
	switch r {
	case ResourceImage:
		return "image"
	case ResourceKeypoints:
		return "keypoints"
	case ResourceDescriptors:
		return "descriptors"
	case ResourceMatches:
		return "matches"
	default:
		return "unknown"
	}
}

// LoadState tells apart a resource that was never read from one whose file
// was absent and one that holds data
type LoadState int

const (
	// NotLoaded means no load was attempted yet, or the last attempt failed
	NotLoaded LoadState = iota
	// Missing means the backing file did not exist at the last attempt
	Missing
	// Loaded means the resource was decoded from disk or set in memory
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case NotLoaded:
		return "not loaded"
	case Missing:
		return "missing"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}
