package thumbnail

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrDropped is returned by MemorySlot.Wait when the slot's pending job was
// cancelled or cleared from the queue.
var ErrDropped = errors.New("thumbnail job dropped from queue")

// SlotState is what a MemorySlot currently shows.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotQueued
	SlotReady
	SlotError
	SlotDropped
)

func (s SlotState) String() string {
	switch s {
	case SlotQueued:
		return "queued"
	case SlotReady:
		return "ready"
	case SlotError:
		return "error"
	case SlotDropped:
		return "dropped"
	default:
		return "empty"
	}
}

// MemorySlot is a Slot that keeps the last image written to it. It backs
// HTTP requests and directory pre-warming, where no UI is attached.
type MemorySlot struct {
	picture Picture

	mu      sync.Mutex
	state   SlotState
	img     image.Image
	writes  int
	changed chan struct{}
}

// NewMemorySlot creates an empty slot for p.
func NewMemorySlot(p Picture) *MemorySlot {
	return &MemorySlot{picture: p, changed: make(chan struct{})}
}

// Picture implements Slot.
func (s *MemorySlot) Picture() Picture { return s.picture }

// SetPlaceholder implements Slot.
func (s *MemorySlot) SetPlaceholder(img image.Image) { s.set(SlotQueued, img) }

// SetBitmap implements Slot.
func (s *MemorySlot) SetBitmap(img image.Image) { s.set(SlotReady, img) }

// SetError implements Slot.
func (s *MemorySlot) SetError(img image.Image) { s.set(SlotError, img) }

// Dropped implements Dropper. A slot that already shows a bitmap or an
// error image keeps it.
func (s *MemorySlot) Dropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotReady || s.state == SlotError {
		return
	}
	s.state = SlotDropped
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *MemorySlot) set(state SlotState, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.img = img
	if state == SlotReady || state == SlotError {
		s.writes++
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

// State returns the current state and image.
func (s *MemorySlot) State() (SlotState, image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.img
}

// Writes returns how many bitmaps and error images have been written.
func (s *MemorySlot) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Wait blocks until the slot shows a bitmap or an error image, or its job
// is dropped from the queue, in which case it returns ErrDropped.
func (s *MemorySlot) Wait(ctx context.Context) (SlotState, image.Image, error) {
	for {
		s.mu.Lock()
		state, img, changed := s.state, s.img, s.changed
		s.mu.Unlock()

		switch state {
		case SlotReady, SlotError:
			return state, img, nil
		case SlotDropped:
			return state, img, ErrDropped
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return state, img, ctx.Err()
		}
	}
}
