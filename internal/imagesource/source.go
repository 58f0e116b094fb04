package imagesource

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// StatusCode is the load state reported to listeners.
type StatusCode int

const (
	StatusUndefined StatusCode = iota
	StatusLoading
	StatusReady
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "undefined"
	}
}

// ProgressCode identifies a phase of a load.
type ProgressCode int

const (
	ProgressQueued ProgressCode = iota
	ProgressDecoding
	ProgressRotating
	ProgressDone
)

// Priority is a scheduling hint for a load. Lower values are more urgent.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Status is delivered to listeners on every state change.
type Status struct {
	Code    StatusCode
	Message string
	Source  *Source
}

// Listener receives load notifications. Calls happen on the loading
// goroutine and must not block for long.
type Listener interface {
	OnStatus(status Status)
	OnProgress(code ProgressCode, percent int)
}

// StatusFunc adapts a function to a Listener that ignores progress.
type StatusFunc func(Status)

// OnStatus implements Listener.
func (f StatusFunc) OnStatus(s Status) { f(s) }

// OnProgress implements Listener.
func (StatusFunc) OnProgress(ProgressCode, int) {}

// Limiter bounds concurrent asynchronous decodes.
// *semaphore.Weighted satisfies it.
type Limiter interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}

// Option configures a Source.
type Option func(*Source)

// WithLimiter gates asynchronous loads through l.
func WithLimiter(l Limiter) Option {
	return func(s *Source) { s.limiter = l }
}

// Source decodes one locator and notifies subscribers of its progress.
// After a successful load the pixels stay available through Image
// without decoding again.
type Source struct {
	locator string
	decoder Decoder
	limiter Limiter

	mu       sync.Mutex
	code     StatusCode
	priority Priority
	rotation float64
	img      image.Image
	err      error
	done     chan struct{}
	subs     []*Subscription
}

// New creates an idle Source.
func New(locator string, decoder Decoder, opts ...Option) *Source {
	done := make(chan struct{})
	close(done)

	s := &Source{
		locator: locator,
		decoder: decoder,
		done:    done,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locator returns the picture locator.
func (s *Source) Locator() string { return s.locator }

// Status returns the current state.
func (s *Source) Status() StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Err returns the error of the last failed load.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Priority returns the hint passed to the last Load.
func (s *Source) Priority() Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priority
}

// Rotation returns the rotation applied by the last load.
func (s *Source) Rotation() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// Done returns a channel closed when the current load finishes, after
// listeners have been notified. It is already closed when idle.
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Image returns the decoded pixels, or nil unless the source is Ready.
// Callers must not modify the returned image.
func (s *Source) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code != StatusReady {
		return nil
	}
	return s.img
}

// Rotated returns a copy of the decoded pixels turned by angle degrees
// counter-clockwise, or nil unless the source is Ready.
func (s *Source) Rotated(angle float64) image.Image {
	img := s.Image()
	if img == nil {
		return nil
	}
	return Rotate(img, angle)
}

// Subscription is a cancellable registration of a Listener.
type Subscription struct {
	id       uuid.UUID
	src      *Source
	listener Listener
	once     sync.Once
}

// ID returns the subscription token.
func (sub *Subscription) ID() uuid.UUID { return sub.id }

// Cancel stops further notifications. It is safe to call more than once
// and from inside a notification.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.src.unsubscribe(sub.id)
	})
}

// Subscribe registers l for notifications until the returned
// subscription is cancelled.
func (s *Source) Subscribe(l Listener) *Subscription {
	sub := &Subscription{id: uuid.New(), src: s, listener: l}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub
}

func (s *Source) unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Source) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Source) listeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Listener, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.listener
	}
	return out
}

func (s *Source) notifyStatus(code StatusCode, msg string) {
	status := Status{Code: code, Message: msg, Source: s}
	for _, l := range s.listeners() {
		l.OnStatus(status)
	}
}

func (s *Source) notifyProgress(code ProgressCode, percent int) {
	for _, l := range s.listeners() {
		l.OnProgress(code, percent)
	}
}

// begin moves the source to Loading. It returns false if a load is
// already running.
func (s *Source) begin(priority Priority, rotation float64) bool {
	s.mu.Lock()
	if s.code == StatusLoading {
		s.mu.Unlock()
		return false
	}
	s.code = StatusLoading
	s.priority = priority
	s.rotation = rotation
	s.img = nil
	s.err = nil
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.notifyStatus(StatusLoading, "loading "+s.locator)
	return true
}

// Load starts an asynchronous decode applying rotation. Listeners see
// Loading before Load returns, then exactly one of Ready or Error.
// It returns false without doing anything if a load is already running.
func (s *Source) Load(ctx context.Context, priority Priority, rotation float64) bool {
	if !s.begin(priority, rotation) {
		return false
	}
	go s.run(ctx, rotation, true)
	return true
}

// LoadSync decodes on the calling goroutine, bypassing the limiter. If an
// asynchronous load is running it waits for that instead; a Ready result
// with the same rotation is returned without decoding again.
func (s *Source) LoadSync(ctx context.Context, rotation float64) (image.Image, error) {
	for {
		s.mu.Lock()
		code, done := s.code, s.done
		if code == StatusReady && s.rotation == rotation {
			img := s.img
			s.mu.Unlock()
			return img, nil
		}
		s.mu.Unlock()

		if code != StatusLoading {
			break
		}
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !s.begin(PriorityHigh, rotation) {
		// Lost a race with Load; wait for its result.
		return s.LoadSync(ctx, rotation)
	}
	return s.run(ctx, rotation, false)
}

func (s *Source) run(ctx context.Context, rotation float64, limited bool) (image.Image, error) {
	s.notifyProgress(ProgressQueued, 0)

	if limited && s.limiter != nil {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			return s.finish(nil, err)
		}
		defer s.limiter.Release(1)
	}

	s.notifyProgress(ProgressDecoding, 10)
	img, err := s.decode(ctx)
	if err == nil && rotation != 0 {
		s.notifyProgress(ProgressRotating, 90)
		img = Rotate(img, rotation)
	}
	return s.finish(img, err)
}

// decode runs the decoder, turning a panic into a DecodeError so that a
// bad file cannot take down the process.
func (s *Source) decode(ctx context.Context) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("decoder panic for %s: %v", s.locator, r)
			img, err = nil, &DecodeError{Locator: s.locator, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()
	return s.decoder.Decode(ctx, s.locator)
}

func (s *Source) finish(img image.Image, err error) (image.Image, error) {
	s.mu.Lock()
	if err != nil {
		s.code = StatusError
		s.err = err
		s.img = nil
	} else {
		s.code = StatusReady
		s.img = img
	}
	done := s.done
	s.mu.Unlock()

	if err != nil {
		if kind := ErrorKind(err); kind != "other" {
			metrics.SourceErrorsTotal.WithLabelValues(kind).Inc()
		}
		logging.Debug("Load of %s failed: %v", s.locator, err)
		s.notifyStatus(StatusError, err.Error())
	} else {
		s.notifyProgress(ProgressDone, 100)
		s.notifyStatus(StatusReady, "")
	}
	close(done)

	return img, err
}

// Rotate returns img turned by angle degrees counter-clockwise. Quarter
// turns are exact; other angles fill uncovered corners with transparency.
// The input is never modified.
func Rotate(img image.Image, angle float64) image.Image {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}

	switch angle {
	case 0:
		return img
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Rotate(img, angle, color.Transparent)
	}
}
