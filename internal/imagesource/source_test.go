package imagesource

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"
)

// recorder is a Listener that keeps every notification.
type recorder struct {
	mu       sync.Mutex
	statuses []StatusCode
	messages []string
	progress []ProgressCode
}

func (r *recorder) OnStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s.Code)
	r.messages = append(r.messages, s.Message)
}

func (r *recorder) OnProgress(code ProgressCode, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, code)
}

func (r *recorder) codes() []StatusCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusCode(nil), r.statuses...)
}

// countingDecoder returns a fresh picture of the given size and counts calls.
type countingDecoder struct {
	calls  atomic.Int32
	width  int
	height int
	err    error
}

func (d *countingDecoder) Decode(ctx context.Context, locator string) (image.Image, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return gradient(d.width, d.height), nil
}

func waitDone(t *testing.T, s *Source) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}
}

func equalCodes(a, b []StatusCode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSourceLoadReady(t *testing.T) {
	dec := &countingDecoder{width: 40, height: 20}
	src := New("a.png", dec)
	rec := &recorder{}
	src.Subscribe(rec)

	if !src.Load(context.Background(), PriorityMedium, 0) {
		t.Fatal("Load() = false on idle source")
	}
	waitDone(t, src)

	if got, want := rec.codes(), []StatusCode{StatusLoading, StatusReady}; !equalCodes(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if src.Status() != StatusReady {
		t.Errorf("Status() = %v, want ready", src.Status())
	}
	if src.Priority() != PriorityMedium {
		t.Errorf("Priority() = %v, want medium", src.Priority())
	}
	img := src.Image()
	if img == nil || img.Bounds().Dx() != 40 {
		t.Fatalf("Image() = %v, want 40px wide picture", img)
	}

	// Reading again does not decode again.
	_ = src.Image()
	if got := dec.calls.Load(); got != 1 {
		t.Errorf("decoder calls = %d, want 1", got)
	}

	rec.mu.Lock()
	lastProgress := rec.progress[len(rec.progress)-1]
	rec.mu.Unlock()
	if lastProgress != ProgressDone {
		t.Errorf("last progress = %v, want ProgressDone", lastProgress)
	}
}

func TestSourceLoadError(t *testing.T) {
	cause := &LocatorError{Locator: "gone.jpg", Err: errors.New("no such file")}
	src := New("gone.jpg", &countingDecoder{err: cause})
	rec := &recorder{}
	src.Subscribe(rec)

	src.Load(context.Background(), PriorityHigh, 0)
	waitDone(t, src)

	if got, want := rec.codes(), []StatusCode{StatusLoading, StatusError}; !equalCodes(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if src.Image() != nil {
		t.Error("Image() should be nil after an error")
	}
	var le *LocatorError
	if !errors.As(src.Err(), &le) {
		t.Errorf("Err() = %v, want *LocatorError", src.Err())
	}
	rec.mu.Lock()
	msg := rec.messages[len(rec.messages)-1]
	rec.mu.Unlock()
	if msg == "" {
		t.Error("error status should carry a message")
	}
}

func TestSourceLoadWhileLoading(t *testing.T) {
	release := make(chan struct{})
	dec := DecoderFunc(func(ctx context.Context, locator string) (image.Image, error) {
		<-release
		return gradient(4, 4), nil
	})
	src := New("slow.png", dec)

	if !src.Load(context.Background(), PriorityLow, 0) {
		t.Fatal("first Load() = false")
	}
	if src.Load(context.Background(), PriorityLow, 0) {
		t.Error("second Load() while loading = true, want false")
	}
	close(release)
	waitDone(t, src)
}

func TestSubscriptionCancel(t *testing.T) {
	src := New("a.png", &countingDecoder{width: 2, height: 2})
	rec := &recorder{}
	sub := src.Subscribe(rec)
	other := src.Subscribe(StatusFunc(func(Status) {}))

	if sub.ID() == other.ID() {
		t.Error("subscriptions share a token")
	}

	sub.Cancel()
	sub.Cancel()

	if got := src.Subscribers(); got != 1 {
		t.Errorf("Subscribers() = %d, want 1", got)
	}

	src.Load(context.Background(), PriorityLow, 0)
	waitDone(t, src)

	if got := rec.codes(); len(got) != 0 {
		t.Errorf("cancelled listener received %v", got)
	}
}

func TestCancelInsideNotification(t *testing.T) {
	src := New("a.png", &countingDecoder{width: 2, height: 2})

	var sub *Subscription
	var ready atomic.Bool
	sub = src.Subscribe(StatusFunc(func(s Status) {
		if s.Code == StatusReady {
			ready.Store(true)
			sub.Cancel()
		}
	}))

	src.Load(context.Background(), PriorityLow, 0)
	waitDone(t, src)

	if !ready.Load() {
		t.Fatal("listener never saw Ready")
	}
	if src.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after self-cancel, want 0", src.Subscribers())
	}
}

func TestLoadSync(t *testing.T) {
	dec := &countingDecoder{width: 30, height: 10}
	src := New("a.png", dec)

	img, err := src.LoadSync(context.Background(), 90)
	if err != nil {
		t.Fatalf("LoadSync() error = %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 30 {
		t.Errorf("rotated size = %dx%d, want 10x30", img.Bounds().Dx(), img.Bounds().Dy())
	}

	if _, err := src.LoadSync(context.Background(), 90); err != nil {
		t.Fatalf("second LoadSync() error = %v", err)
	}
	if got := dec.calls.Load(); got != 1 {
		t.Errorf("decoder calls = %d, want 1 for same rotation", got)
	}

	if _, err := src.LoadSync(context.Background(), 0); err != nil {
		t.Fatalf("LoadSync(0) error = %v", err)
	}
	if got := dec.calls.Load(); got != 2 {
		t.Errorf("decoder calls = %d, want 2 after rotation change", got)
	}
}

func TestLoadSyncJoinsRunningLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	dec := DecoderFunc(func(ctx context.Context, locator string) (image.Image, error) {
		calls.Add(1)
		<-release
		return gradient(4, 4), nil
	})
	src := New("a.png", dec)
	src.Load(context.Background(), PriorityLow, 0)

	result := make(chan error, 1)
	go func() {
		_, err := src.LoadSync(context.Background(), 0)
		result <- err
	}()

	close(release)
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("LoadSync() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("LoadSync did not return")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("decoder calls = %d, want 1", got)
	}
}

func TestLimiterBoundsConcurrentLoads(t *testing.T) {
	var running, peak atomic.Int32
	dec := DecoderFunc(func(ctx context.Context, locator string) (image.Image, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return gradient(2, 2), nil
	})

	sem := semaphore.NewWeighted(1)
	var sources []*Source
	for _, name := range []string{"a", "b", "c", "d"} {
		src := New(name, dec, WithLimiter(sem))
		src.Load(context.Background(), PriorityLow, 0)
		sources = append(sources, src)
	}
	for _, src := range sources {
		waitDone(t, src)
	}

	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrent decodes = %d, want 1", got)
	}
}

func TestLoadCancelledWhileQueued(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	if err := sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	dec := &countingDecoder{width: 2, height: 2}
	src := New("a", dec, WithLimiter(sem))
	src.Load(ctx, PriorityLow, 0)
	cancel()
	waitDone(t, src)

	if src.Status() != StatusError {
		t.Errorf("Status() = %v, want error", src.Status())
	}
	if !errors.Is(src.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", src.Err())
	}
	if dec.calls.Load() != 0 {
		t.Error("decoder ran for a cancelled load")
	}
}

func TestRotate(t *testing.T) {
	img := gradient(30, 10)

	tests := []struct {
		angle        float64
		wantW, wantH int
	}{
		{0, 30, 10},
		{90, 10, 30},
		{180, 30, 10},
		{270, 10, 30},
		{-90, 10, 30},
		{450, 10, 30},
	}

	for _, tt := range tests {
		got := Rotate(img, tt.angle).Bounds()
		if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
			t.Errorf("Rotate(%v) size = %dx%d, want %dx%d", tt.angle, got.Dx(), got.Dy(), tt.wantW, tt.wantH)
		}
	}

	if Rotate(img, 45).Bounds().Dx() <= 30 {
		t.Error("Rotate(45) should grow the canvas")
	}
}

func TestRotatedRequiresReady(t *testing.T) {
	src := New("a", &countingDecoder{width: 8, height: 4})
	if src.Rotated(90) != nil {
		t.Error("Rotated() on idle source should be nil")
	}
	src.Load(context.Background(), PriorityLow, 0)
	waitDone(t, src)
	if r := src.Rotated(90); r == nil || r.Bounds().Dx() != 4 {
		t.Errorf("Rotated(90) = %v, want 4px wide", r)
	}
}

func TestDecoderPanicBecomesError(t *testing.T) {
	dec := DecoderFunc(func(ctx context.Context, locator string) (image.Image, error) {
		panic("corrupt huffman table")
	})
	src := New("bad.jpg", dec)
	src.Load(context.Background(), PriorityLow, 0)
	waitDone(t, src)

	var de *DecodeError
	if !errors.As(src.Err(), &de) {
		t.Errorf("Err() = %v, want *DecodeError", src.Err())
	}
}
