package thumbnail

import (
	"image"

	"photo-catalog/internal/imagesource"
)

// Priority orders pending jobs. Lower values are served first.
type Priority int

const (
	High Priority = iota
	Medium
	Low

	numPriorities = 3
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "invalid"
	}
}

// ParsePriority maps "high", "medium" and "low" to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "high":
		return High, true
	case "medium":
		return Medium, true
	case "low":
		return Low, true
	}
	return Low, false
}

func (p Priority) valid() bool { return p >= High && p <= Low }

func (p Priority) sourcePriority() imagesource.Priority {
	switch p {
	case High:
		return imagesource.PriorityHigh
	case Medium:
		return imagesource.PriorityMedium
	default:
		return imagesource.PriorityLow
	}
}

// Picture is what a slot displays.
type Picture struct {
	Locator  string
	Rotation float64
}

// Slot is the display surface a thumbnail is rendered into. Implementations
// must be comparable, since pending jobs are keyed by their slot; pointer
// types satisfy this.
type Slot interface {
	Picture() Picture
	SetPlaceholder(img image.Image)
	SetBitmap(img image.Image)
	SetError(img image.Image)
}

// Dropper is implemented by slots that need to know when their pending job
// was removed by Cancel or Clear without being rendered. Dropped is called
// without the queue lock held.
type Dropper interface {
	Dropped()
}

// Job asks for the thumbnail of Target. Force skips stored thumbnails.
type Job struct {
	Target   Slot
	Priority Priority
	Force    bool
}
