package split

// Class routes an entry through the pipeline based on its size.
type Class int

const (
	// PassThrough entries are staged whole.
	PassThrough Class = iota
	// Split entries exceed the threshold and are replaced by chunks.
	Split
	// SkipOverlarge entries exceed the threshold while splitting is
	// disabled; they are recorded for the final report, not uploaded.
	SkipOverlarge
)

func (c Class) String() string {
	switch c {
	case PassThrough:
		return "pass-through"
	case Split:
		return "split"
	case SkipOverlarge:
		return "skip-overlarge"
	default:
		return "unknown"
	}
}

// Classify measures size against the configured threshold.
func Classify(size, maxSize int64, splittingEnabled bool) Class {
	if size <= maxSize {
		return PassThrough
	}
	if splittingEnabled {
		return Split
	}
	return SkipOverlarge
}
