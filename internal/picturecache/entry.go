package picturecache

import (
	"context"
	"image"
	"sync"
)

// State is the lifecycle stage of an Entry.
type State int

const (
	StateLoading State = iota
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "error"
	}
}

// Entry is one decoded picture, or a picture being decoded. The pixels of
// a Ready entry are shared by every consumer and must be treated as
// read-only.
type Entry struct {
	key      string
	rotation float64

	mu    sync.Mutex
	state State
	img   image.Image
	err   error
	done  chan struct{}
}

func newEntry(key string, rotation float64) *Entry {
	return &Entry{
		key:      key,
		rotation: rotation,
		state:    StateLoading,
		done:     make(chan struct{}),
	}
}

// Key returns the picture locator.
func (e *Entry) Key() string { return e.key }

// Rotation returns the rotation baked into the pixels.
func (e *Entry) Rotation() float64 { return e.rotation }

// State returns the current state.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Image returns the pixels, or nil unless the entry is Ready.
func (e *Entry) Image() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return nil
	}
	return e.img
}

// Done is closed once the entry leaves Loading.
func (e *Entry) Done() <-chan struct{} { return e.done }

// Wait blocks until the entry leaves Loading and returns its pixels or the
// reason it failed.
func (e *Entry) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateReady {
		return e.img, nil
	}
	return nil, e.err
}

// resolve moves a Loading entry to Ready (err == nil) or Error. It returns
// false if the entry was already resolved.
func (e *Entry) resolve(img image.Image, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateLoading {
		return false
	}
	if err != nil {
		e.state = StateError
		e.err = err
	} else {
		e.state = StateReady
		e.img = img
	}
	close(e.done)
	return true
}
