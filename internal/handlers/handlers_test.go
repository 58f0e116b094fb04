package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photo-catalog/internal/imagesource"
	"photo-catalog/internal/indexer"
	"photo-catalog/internal/picturecache"
	"photo-catalog/internal/startup"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/thumbstore"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
)

const testThumbSize = 16

type harness struct {
	h     *Handlers
	dir   string
	queue *thumbnail.Queue
	pool  *thumbnail.Pool
	cache *picturecache.Cache
	store *thumbstore.Store
}

type harnessOptions struct {
	cacheCapacity  int
	noStore        bool
	noWorkers      bool
	requestTimeout time.Duration
	indexer        Prewarmer
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		src.SetNRGBA(x, 0, color.NRGBA{R: 200, A: 255})
	}
	if err := imaging.Save(src, filepath.Join(dir, "a.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "album"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := imaging.Save(src, filepath.Join(dir, "album", "b.jpg")); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"bad.jpg": "not a picture", "notes.txt": "hello"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	decoder := imagesource.NewDecoder(
		imagesource.NewOpener(nil, imagesource.DefaultOpenerConfig()),
		imagesource.DefaultConstraints(),
	)

	queue := thumbnail.NewQueue(thumbnail.QueuedIcon(testThumbSize))
	cache := picturecache.New(opts.cacheCapacity)
	loader := picturecache.NewLoader(cache, decoder, 2)
	t.Cleanup(loader.Stop)

	var store *thumbstore.Store
	poolCfg := thumbnail.Config{
		Workers: 2,
		Size:    testThumbSize,
		Queue:   queue,
		Loader:  loader,
		Decoder: decoder,
	}
	if !opts.noStore {
		var err error
		store, err = thumbstore.Open(context.Background(), filepath.Join(t.TempDir(), "thumbs"))
		if err != nil {
			t.Fatalf("thumbstore.Open: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		poolCfg.Store = store
	}

	pool := thumbnail.NewPool(poolCfg)
	hs := &harness{dir: dir, queue: queue, pool: pool, cache: cache, store: store}
	if !opts.noWorkers {
		pool.Start(context.Background())
	}
	t.Cleanup(pool.Stop)

	hs.h = New(Config{
		PictureDir:     dir,
		RequestTimeout: opts.requestTimeout,
		Queue:          queue,
		Pool:           pool,
		Cache:          cache,
		Loader:         loader,
		Store:          store,
		Indexer:        opts.indexer,
	})
	return hs
}

func (hs *harness) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", hs.h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", hs.h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", hs.h.GetVersion).Methods(http.MethodGet)
	r.Handle("/metrics", hs.h.MetricsHandler()).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{path:.*}", hs.h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail/{path:.*}", hs.h.InvalidateThumbnail).Methods(http.MethodDelete)
	api.HandleFunc("/stats", hs.h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/clear", hs.h.ClearCache).Methods(http.MethodPost)
	api.HandleFunc("/prefetch", hs.h.Prefetch).Methods(http.MethodPost)
	api.HandleFunc("/reindex", hs.h.TriggerReindex).Methods(http.MethodPost)
	return r
}

func (hs *harness) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	rec := httptest.NewRecorder()
	hs.router().ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetThumbnail(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		target   string
		wantW    int
		wantH    int
	}{
		{"cached png", 4, "/api/thumbnail/a.png", 16, 8},
		{"uncached png", 0, "/api/thumbnail/a.png", 16, 8},
		{"nested jpeg", 4, "/api/thumbnail/album/b.jpg", 16, 8},
		{"rotated", 4, "/api/thumbnail/a.png?rotation=90", 8, 16},
		{"forced low priority", 4, "/api/thumbnail/a.png?force=true&priority=low", 16, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, harnessOptions{cacheCapacity: tt.capacity})
			rec := hs.do(t, http.MethodGet, tt.target, nil)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %q, want image/jpeg", ct)
			}

			img, err := imaging.Decode(rec.Body)
			if err != nil {
				t.Fatalf("response is not a picture: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("thumbnail is %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGetThumbnailServedFromStore(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4})

	if rec := hs.do(t, http.MethodGet, "/api/thumbnail/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	// Clearing the full-picture cache leaves the stored thumbnail usable.
	hs.cache.Clear()
	if rec := hs.do(t, http.MethodGet, "/api/thumbnail/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if hs.cache.IsInCache(filepath.Join(hs.dir, "a.png")) {
		t.Error("stored thumbnail should not reload the full picture")
	}
}

func TestGetThumbnailErrors(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing", "/api/thumbnail/missing.jpg", http.StatusNotFound},
		{"not a picture", "/api/thumbnail/notes.txt", http.StatusBadRequest},
		{"bad rotation", "/api/thumbnail/a.png?rotation=left", http.StatusBadRequest},
		{"bad priority", "/api/thumbnail/a.png?priority=urgent", http.StatusBadRequest},
		{"bad force", "/api/thumbnail/a.png?force=maybe", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hs.do(t, http.MethodGet, tt.target, nil)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestGetThumbnailRejectsTraversal(t *testing.T) {
	hs := newHarness(t, harnessOptions{noStore: true})

	for _, p := range []string{"../escape.jpg", "album/../../escape.jpg"} {
		req := httptest.NewRequest(http.MethodGet, "/api/thumbnail/x", http.NoBody)
		req = mux.SetURLVars(req, map[string]string{"path": p})
		rec := httptest.NewRecorder()
		hs.h.GetThumbnail(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("path %q: status = %d, want 400", p, rec.Code)
		}
	}
	if hs.queue.Len() != 0 {
		t.Error("rejected paths must not queue jobs")
	}
}

func TestGetThumbnailUndecodable(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4})

	rec := hs.do(t, http.MethodGet, "/api/thumbnail/bad.jpg", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if rec.Header().Get("X-Thumbnail-Error") != "true" {
		t.Error("expected X-Thumbnail-Error header")
	}
	if _, err := imaging.Decode(rec.Body); err != nil {
		t.Errorf("error icon is not a picture: %v", err)
	}
	if hs.cache.IsInCache(filepath.Join(hs.dir, "bad.jpg")) {
		t.Error("failed load should leave no cache entry")
	}
}

func TestGetThumbnailTimeoutCancelsJob(t *testing.T) {
	hs := newHarness(t, harnessOptions{noWorkers: true, requestTimeout: 50 * time.Millisecond})

	rec := hs.do(t, http.MethodGet, "/api/thumbnail/a.png", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if n := hs.queue.Len(); n != 0 {
		t.Errorf("queue holds %d jobs after timeout, want 0", n)
	}
}

func TestInvalidateThumbnail(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4})

	if rec := hs.do(t, http.MethodGet, "/api/thumbnail/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("render status = %d", rec.Code)
	}

	rec := hs.do(t, http.MethodDelete, "/api/thumbnail/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		StoredRemoved int  `json:"storedRemoved"`
		CacheRemoved  bool `json:"cacheRemoved"`
	}
	decodeJSON(t, rec, &body)
	if body.StoredRemoved != 1 || !body.CacheRemoved {
		t.Errorf("invalidate = %+v, want 1 stored and the cache entry removed", body)
	}

	stats, err := hs.store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("store holds %d entries, want 0", stats.Entries)
	}
}

func TestGetStats(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4})

	if rec := hs.do(t, http.MethodGet, "/api/thumbnail/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("render status = %d", rec.Code)
	}

	rec := hs.do(t, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats StatsResponse
	decodeJSON(t, rec, &stats)

	if !stats.Cache.Enabled || stats.Cache.Capacity != 4 || stats.Cache.Ready != 1 {
		t.Errorf("cache stats = %+v", stats.Cache)
	}
	if stats.Workers.Workers != 2 || stats.Workers.Processed < 1 {
		t.Errorf("worker stats = %+v", stats.Workers)
	}
	if !stats.Store.Enabled || stats.Store.Entries != 1 || stats.Store.Bytes <= 0 {
		t.Errorf("store stats = %+v", stats.Store)
	}
	if stats.Queue.Total != 0 {
		t.Errorf("queue stats = %+v", stats.Queue)
	}
	if stats.Prewarm != nil || stats.Memory != nil {
		t.Error("disabled features should be omitted")
	}

	m := hs.h.StatsProvider().GetStats()
	if m.CacheReady != 1 || m.CacheCapacity != 4 || m.StoreEntries != 1 {
		t.Errorf("metrics stats = %+v", m)
	}
}

func TestClearCache(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4, noWorkers: true})

	if _, err := hs.cache.Add("x", 0); err != nil {
		t.Fatal(err)
	}
	hs.queue.Enqueue(thumbnail.Job{
		Target:   thumbnail.NewMemorySlot(thumbnail.Picture{Locator: "y"}),
		Priority: thumbnail.Low,
	})

	rec := hs.do(t, http.MethodPost, "/api/cache/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		CacheEntries  int `json:"cacheEntries"`
		JobsCancelled int `json:"jobsCancelled"`
	}
	decodeJSON(t, rec, &body)
	if body.CacheEntries != 1 || body.JobsCancelled != 1 {
		t.Errorf("clear = %+v, want 1 entry and 1 job", body)
	}
	if hs.cache.Len() != 0 || hs.queue.Len() != 0 {
		t.Error("cache and queue should be empty")
	}
}

func TestClearCacheEndsWaitingRequests(t *testing.T) {
	hs := newHarness(t, harnessOptions{noWorkers: true, requestTimeout: 10 * time.Second})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		hs.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/thumbnail/a.png", http.NoBody))
		done <- rec
	}()

	deadline := time.Now().Add(5 * time.Second)
	for hs.queue.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("thumbnail job was never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := hs.do(t, http.MethodPost, "/api/cache/clear", nil); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	select {
	case rec := <-done:
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request still waiting after its job was cleared")
	}
}

func TestPrefetch(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 4})

	rec := hs.do(t, http.MethodPost, "/api/prefetch", strings.NewReader(`{"paths":["a.png","album/b.jpg"]}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	key := filepath.Join(hs.dir, "a.png")
	entry, ok := hs.cache.Lookup(key)
	if !ok {
		t.Fatal("prefetch did not create a cache entry")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := entry.Wait(ctx); err != nil {
		t.Fatalf("prefetched entry failed: %v", err)
	}

	for _, body := range []string{`{"paths":[]}`, `{"paths":["../x.jpg"]}`, `not json`} {
		if rec := hs.do(t, http.MethodPost, "/api/prefetch", strings.NewReader(body)); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestPrefetchCachingDisabled(t *testing.T) {
	hs := newHarness(t, harnessOptions{cacheCapacity: 0})

	rec := hs.do(t, http.MethodPost, "/api/prefetch", bytes.NewReader([]byte(`{"paths":["a.png"]}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

type fakePrewarmer struct {
	ready     bool
	status    indexer.HealthStatus
	triggered int
}

func (f *fakePrewarmer) IsReady() bool                         { return f.ready }
func (f *fakePrewarmer) GetHealthStatus() indexer.HealthStatus { return f.status }
func (f *fakePrewarmer) TriggerIndex()                         { f.triggered++ }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		indexer    *fakePrewarmer
		wantCode   int
		wantStatus string
	}{
		{"no pre-warm", nil, http.StatusOK, statusHealthy},
		{"initial scan running", &fakePrewarmer{status: indexer.HealthStatus{Indexing: true}}, http.StatusServiceUnavailable, statusStarting},
		{"scan done", &fakePrewarmer{ready: true, status: indexer.HealthStatus{LastIndexed: time.Now()}}, http.StatusOK, statusHealthy},
		{"scan failed", &fakePrewarmer{ready: true, status: indexer.HealthStatus{InitialIndexError: "boom"}}, http.StatusOK, statusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := harnessOptions{cacheCapacity: 4, noStore: true}
			if tt.indexer != nil {
				opts.indexer = tt.indexer
			}
			hs := newHarness(t, opts)

			rec := hs.do(t, http.MethodGet, "/healthz", nil)
			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp HealthResponse
			decodeJSON(t, rec, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Workers != 2 || !resp.CachingEnabled || resp.StoreEnabled {
				t.Errorf("engine fields = %+v", resp)
			}

			ready := hs.do(t, http.MethodGet, "/readyz", nil)
			if ready.Code != tt.wantCode {
				t.Errorf("readyz code = %d, want %d", ready.Code, tt.wantCode)
			}
		})
	}
}

func TestHealthCheckHead(t *testing.T) {
	hs := newHarness(t, harnessOptions{noStore: true})
	rec := hs.do(t, http.MethodHead, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD /healthz = %d with %d body bytes", rec.Code, rec.Body.Len())
	}
}

func TestLivenessCheck(t *testing.T) {
	h := &Handlers{}
	rec := httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodGet, "/livez", http.NoBody))

	var body map[string]string
	decodeJSON(t, rec, &body)
	if rec.Code != http.StatusOK || body["status"] != "alive" {
		t.Errorf("livez = %d %v", rec.Code, body)
	}
}

func TestTriggerReindex(t *testing.T) {
	idle := &fakePrewarmer{ready: true}
	hs := newHarness(t, harnessOptions{noStore: true, indexer: idle})
	if rec := hs.do(t, http.MethodPost, "/api/reindex", nil); rec.Code != http.StatusAccepted || idle.triggered != 1 {
		t.Errorf("idle reindex = %d, triggered %d", rec.Code, idle.triggered)
	}

	busy := &fakePrewarmer{ready: true, status: indexer.HealthStatus{Indexing: true}}
	hs = newHarness(t, harnessOptions{noStore: true, indexer: busy})
	if rec := hs.do(t, http.MethodPost, "/api/reindex", nil); rec.Code != http.StatusOK || busy.triggered != 0 {
		t.Errorf("busy reindex = %d, triggered %d", rec.Code, busy.triggered)
	}

	hs = newHarness(t, harnessOptions{noStore: true})
	if rec := hs.do(t, http.MethodPost, "/api/reindex", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled reindex = %d, want 503", rec.Code)
	}
}

func TestGetVersion(t *testing.T) {
	hs := newHarness(t, harnessOptions{noStore: true})
	rec := hs.do(t, http.MethodGet, "/version", nil)

	var info startup.BuildInfo
	decodeJSON(t, rec, &info)
	if info.Version != startup.Version || rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("version = %+v", info)
	}
}

func TestMetricsHandler(t *testing.T) {
	hs := newHarness(t, harnessOptions{noStore: true})
	if rec := hs.do(t, http.MethodGet, "/api/thumbnail/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("render status = %d", rec.Code)
	}

	rec := hs.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "photo_catalog_thumbnail_renders_total") {
		t.Error("metrics output is missing render counters")
	}
}

func TestIsSubPath(t *testing.T) {
	root := filepath.FromSlash("/pictures")
	tests := []struct {
		child string
		want  bool
	}{
		{"/pictures/a.jpg", true},
		{"/pictures/album/b.jpg", true},
		{"/pictures", true},
		{"/pictures-other/a.jpg", false},
		{"/a.jpg", false},
		{"/pictures/..foo.jpg", true},
	}
	for _, tt := range tests {
		if got := isSubPath(root, filepath.FromSlash(tt.child)); got != tt.want {
			t.Errorf("isSubPath(%q) = %v, want %v", tt.child, got, tt.want)
		}
	}
}
