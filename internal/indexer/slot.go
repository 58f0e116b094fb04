package indexer

import (
	"image"
	"sync/atomic"

	"photo-catalog/internal/thumbnail"
)

// prewarmSlot is a Slot nobody displays. It discards the rendered bitmap,
// which the worker has already persisted to the store, and only records
// that the job is no longer pending.
type prewarmSlot struct {
	picture thumbnail.Picture
	done    atomic.Bool
	failed  *atomic.Int64
}

func newPrewarmSlot(locator string, failed *atomic.Int64) *prewarmSlot {
	return &prewarmSlot{
		picture: thumbnail.Picture{Locator: locator},
		failed:  failed,
	}
}

func (s *prewarmSlot) Picture() thumbnail.Picture { return s.picture }

func (s *prewarmSlot) SetPlaceholder(image.Image) {}

func (s *prewarmSlot) SetBitmap(image.Image) { s.done.Store(true) }

func (s *prewarmSlot) SetError(image.Image) {
	s.done.Store(true)
	s.failed.Add(1)
}

// Dropped marks the slot finished so the next scan queues the picture again.
func (s *prewarmSlot) Dropped() { s.done.Store(true) }

func (s *prewarmSlot) finished() bool { return s.done.Load() }
