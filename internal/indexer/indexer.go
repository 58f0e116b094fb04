package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/mediatypes"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/thumbnail"
)

const defaultPollInterval = 30 * time.Second

// errStopped aborts a walk when the indexer is stopped.
var errStopped = errors.New("indexer stopped")

// Enqueuer accepts thumbnail jobs. *thumbnail.Queue satisfies it.
type Enqueuer interface {
	Enqueue(job thumbnail.Job)
}

// Indexer walks a picture directory and queues low priority thumbnail jobs.
type Indexer struct {
	queue         Enqueuer
	pictureDir    string
	indexInterval time.Duration
	pollInterval  time.Duration
	vipsAvailable bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	initialIndexComplete bool
	initialIndexError    error
	startTime            time.Time

	// pending holds the slots of jobs queued by earlier scans that have not
	// rendered yet, so a rescan does not queue the same picture twice.
	pendingMu sync.Mutex
	pending   map[string]*prewarmSlot

	picturesQueued atomic.Int64
	picturesSeen   atomic.Int64
	foldersScanned atomic.Int64
	failed         atomic.Int64

	stateMu            sync.RWMutex
	lastRootModTime    time.Time
	lastTopLevelCount  int
	lastSubdirModTimes map[string]time.Time
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool      `json:"ready"`
	Indexing          bool      `json:"indexing"`
	StartTime         time.Time `json:"startTime"`
	Uptime            string    `json:"uptime"`
	LastIndexed       time.Time `json:"lastIndexed,omitempty"`
	InitialIndexError string    `json:"initialIndexError,omitempty"`
	PicturesSeen      int64     `json:"picturesSeen"`
	PicturesQueued    int64     `json:"picturesQueued"`
	FoldersScanned    int64     `json:"foldersScanned"`
	Pending           int       `json:"pending"`
	Failed            int64     `json:"failed"`
}

// New creates an Indexer. An indexInterval of zero disables periodic rescans.
func New(queue Enqueuer, pictureDir string, indexInterval time.Duration) *Indexer {
	return &Indexer{
		queue:              queue,
		pictureDir:         pictureDir,
		indexInterval:      indexInterval,
		pollInterval:       defaultPollInterval,
		stopChan:           make(chan struct{}),
		startTime:          time.Now(),
		pending:            make(map[string]*prewarmSlot),
		lastSubdirModTimes: make(map[string]time.Time),
	}
}

// SetPollInterval sets the interval for polling-based change detection.
// Zero or negative disables polling.
func (idx *Indexer) SetPollInterval(interval time.Duration) {
	idx.pollInterval = interval
}

// SetVipsAvailable lets scans queue formats only libvips can decode.
func (idx *Indexer) SetVipsAvailable(available bool) {
	idx.vipsAvailable = available
}

// Start runs the initial scan in the background and starts change polling
// and periodic rescans.
func (idx *Indexer) Start() {
	idx.spawn(func() {
		logging.Info("Starting initial pre-warm scan in background...")
		if _, err := idx.Index(); err != nil && !errors.Is(err, errStopped) {
			logging.Error("Initial pre-warm scan error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
	})

	if idx.pollInterval > 0 {
		idx.spawn(idx.pollForChanges)
	}
	if idx.indexInterval > 0 {
		idx.spawn(idx.periodicIndex)
	}
}

func (idx *Indexer) spawn(fn func()) {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		fn()
	}()
}

// Stop ends background scanning and waits for it to exit. Jobs already
// queued stay queued.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() { close(idx.stopChan) })
	idx.wg.Wait()
}

func (idx *Indexer) stopped() bool {
	select {
	case <-idx.stopChan:
		return true
	default:
		return false
	}
}

// IsReady reports whether the initial scan has finished.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

// IsIndexing returns whether a scan is currently in progress.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	status := HealthStatus{
		Ready:       idx.initialIndexComplete,
		Indexing:    idx.isIndexing,
		StartTime:   idx.startTime,
		Uptime:      time.Since(idx.startTime).Round(time.Second).String(),
		LastIndexed: idx.lastIndexTime,
	}
	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}
	idx.indexMu.Unlock()

	status.PicturesSeen = idx.picturesSeen.Load()
	status.PicturesQueued = idx.picturesQueued.Load()
	status.FoldersScanned = idx.foldersScanned.Load()
	status.Failed = idx.failed.Load()
	status.Pending = idx.Pending()
	return status
}

// Pending returns how many queued pictures have not rendered yet.
func (idx *Indexer) Pending() int {
	idx.pendingMu.Lock()
	defer idx.pendingMu.Unlock()

	n := 0
	for _, s := range idx.pending {
		if !s.finished() {
			n++
		}
	}
	return n
}

// TriggerIndex starts a rescan in the background.
func (idx *Indexer) TriggerIndex() {
	if idx.stopped() {
		return
	}
	idx.spawn(func() {
		if _, err := idx.Index(); err != nil && !errors.Is(err, errStopped) {
			logging.Error("manually triggered pre-warm scan failed: %v", err)
		}
	})
}

// Index walks the picture directory once and returns the number of jobs it
// queued. A scan already in progress makes this a no-op.
func (idx *Indexer) Index() (int, error) {
	if !idx.tryStartIndexing() {
		logging.Info("Pre-warm scan already in progress, skipping...")
		return 0, nil
	}
	defer idx.finishIndexing()

	metrics.PrewarmIsRunning.Set(1)
	defer metrics.PrewarmIsRunning.Set(0)
	metrics.PrewarmRunsTotal.Inc()

	start := time.Now()
	idx.picturesSeen.Store(0)
	idx.foldersScanned.Store(0)

	queued, err := idx.walk()
	if err != nil {
		if !errors.Is(err, errStopped) {
			metrics.PrewarmErrors.Inc()
		}
		return queued, err
	}

	idx.updateLastKnownState()

	duration := time.Since(start)
	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.indexMu.Unlock()

	metrics.PrewarmLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.PrewarmLastRunDuration.Set(duration.Seconds())

	logging.Info("Pre-warm scan complete: %d pictures, %d folders, %d queued in %v",
		idx.picturesSeen.Load(), idx.foldersScanned.Load(), queued, duration.Round(time.Millisecond))
	return queued, nil
}

func (idx *Indexer) walk() (int, error) {
	if _, err := os.Stat(idx.pictureDir); err != nil {
		return 0, fmt.Errorf("failed to stat picture directory: %w", err)
	}

	idx.pendingMu.Lock()
	previous := idx.pending
	idx.pendingMu.Unlock()

	next := make(map[string]*prewarmSlot)
	queued := 0

	err := filepath.WalkDir(idx.pictureDir, func(path string, d fs.DirEntry, err error) error {
		if idx.stopped() {
			return errStopped
		}
		if err != nil {
			logging.Debug("Skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if path != idx.pictureDir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			idx.foldersScanned.Add(1)
			return nil
		}
		if !d.Type().IsRegular() || !idx.wanted(path) {
			return nil
		}
		idx.picturesSeen.Add(1)

		if slot, ok := previous[path]; ok && !slot.finished() {
			next[path] = slot
			return nil
		}

		slot := newPrewarmSlot(path, &idx.failed)
		next[path] = slot
		idx.queue.Enqueue(thumbnail.Job{Target: slot, Priority: thumbnail.Low})
		queued++
		return nil
	})

	idx.pendingMu.Lock()
	if err != nil {
		// Keep what was queued before the walk ended.
		for k, v := range next {
			previous[k] = v
		}
		next = previous
	}
	idx.pending = next
	idx.pendingMu.Unlock()

	idx.picturesQueued.Add(int64(queued))
	metrics.PrewarmPicturesQueued.Add(float64(queued))

	return queued, err
}

func (idx *Indexer) wanted(path string) bool {
	format := mediatypes.FormatOf(path)
	if format == mediatypes.FormatUnknown {
		return false
	}
	return idx.vipsAvailable || !format.NeedsVips()
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialIndexComplete = true
}

func (idx *Indexer) periodicIndex() {
	ticker := time.NewTicker(idx.indexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic pre-warm scan triggered")
			if _, err := idx.Index(); err != nil && !errors.Is(err, errStopped) {
				logging.Error("periodic pre-warm scan failed: %v", err)
			}
		case <-idx.stopChan:
			return
		}
	}
}

// pollForChanges rescans when the top of the picture tree changes.
func (idx *Indexer) pollForChanges() {
	for !idx.IsReady() {
		select {
		case <-time.After(time.Second):
		case <-idx.stopChan:
			return
		}
	}

	logging.Info("Starting change detection polling (interval: %v)", idx.pollInterval)

	ticker := time.NewTicker(idx.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			changed, err := idx.detectChanges()
			if err != nil {
				logging.Error("Error detecting changes: %v", err)
				continue
			}
			if changed {
				metrics.PrewarmChangesDetected.Inc()
				logging.Info("Picture changes detected, triggering pre-warm scan")
				if _, err := idx.Index(); err != nil && !errors.Is(err, errStopped) {
					logging.Error("Pre-warm scan after change detection failed: %v", err)
				}
			}
		case <-idx.stopChan:
			logging.Info("Change detection polling stopped")
			return
		}
	}
}

// detectChanges checks the root's modification time, the count of
// top-level entries and the modification times of top-level folders. It
// never walks the whole tree, which matters on NFS.
func (idx *Indexer) detectChanges() (bool, error) {
	rootInfo, err := os.Stat(idx.pictureDir)
	if err != nil {
		return false, fmt.Errorf("failed to stat picture directory: %w", err)
	}

	idx.stateMu.RLock()
	lastRootModTime := idx.lastRootModTime
	lastTopLevelCount := idx.lastTopLevelCount
	lastSubdirModTimes := idx.lastSubdirModTimes
	idx.stateMu.RUnlock()

	if rootInfo.ModTime().After(lastRootModTime) {
		logging.Debug("Root directory modified: %v > %v", rootInfo.ModTime(), lastRootModTime)
		return true, nil
	}

	count, subdirs, err := idx.topLevelState()
	if err != nil {
		return false, err
	}
	if count != lastTopLevelCount {
		logging.Debug("Top-level count changed: %d -> %d", lastTopLevelCount, count)
		return true, nil
	}

	for name, mod := range subdirs {
		last, ok := lastSubdirModTimes[name]
		if !ok || mod.After(last) {
			logging.Debug("Subdirectory %s changed", name)
			return true, nil
		}
	}

	return false, nil
}

func (idx *Indexer) topLevelState() (int, map[string]time.Time, error) {
	entries, err := os.ReadDir(idx.pictureDir)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read picture directory: %w", err)
	}

	count := 0
	subdirs := make(map[string]time.Time)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		count++

		if entry.IsDir() {
			if info, err := os.Stat(filepath.Join(idx.pictureDir, entry.Name())); err == nil {
				subdirs[entry.Name()] = info.ModTime()
			}
		}
	}
	return count, subdirs, nil
}

func (idx *Indexer) updateLastKnownState() {
	rootInfo, err := os.Stat(idx.pictureDir)
	if err != nil {
		logging.Warn("Failed to stat picture directory for state update: %v", err)
		return
	}

	count, subdirs, err := idx.topLevelState()
	if err != nil {
		logging.Warn("Failed to read picture directory for state update: %v", err)
		return
	}

	idx.stateMu.Lock()
	idx.lastRootModTime = rootInfo.ModTime()
	idx.lastTopLevelCount = count
	idx.lastSubdirModTimes = subdirs
	idx.stateMu.Unlock()
}
