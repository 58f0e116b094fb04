package thumbstore

import (
	"context"
	"crypto/md5"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-catalog/internal/filesystem"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/mediatypes"
	"photo-catalog/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// JPEGQuality is the encoding quality of stored thumbnails.
const JPEGQuality = 80

// Key identifies one rendered thumbnail.
type Key struct {
	Locator  string
	Rotation float64
	Size     int
}

// normalized folds the rotation into [0, 360) so that equivalent angles
// share one stored thumbnail.
func (k Key) normalized() Key {
	k.Rotation = math.Mod(k.Rotation, 360)
	if k.Rotation < 0 {
		k.Rotation += 360
	}
	if k.Rotation == 0 {
		k.Rotation = 0 // drop negative zero
	}
	return k
}

// fileName is the md5 of the key so that any locator maps to a flat,
// filesystem-safe name.
func (k Key) fileName() string {
	raw := k.Locator + "|" + strconv.FormatFloat(k.Rotation, 'g', -1, 64) + "|" + strconv.Itoa(k.Size)
	return fmt.Sprintf("%x.jpg", md5.Sum([]byte(raw)))
}

// Stats summarises the store contents.
type Stats struct {
	Entries int
	Bytes   int64
}

// Store persists rendered thumbnails as JPEG files indexed in SQLite.
type Store struct {
	db    *sql.DB
	dir   string
	retry filesystem.RetryConfig
}

// Open creates dir if needed and opens the index inside it.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail dir: %w", err)
	}

	dbPath := filepath.Join(dir, "thumbnails.db")
	logging.Info("Thumbnail index: %s", dbPath)

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open thumbnail index: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close thumbnail index after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to thumbnail index: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dir: dir, retry: filesystem.DefaultRetryConfig()}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close thumbnail index after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize thumbnail index: %w", err)
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		locator TEXT NOT NULL,
		rotation REAL NOT NULL,
		size INTEGER NOT NULL,
		file TEXT NOT NULL,
		bytes INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		source_mod_time INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (locator, rotation, size)
	);

	CREATE INDEX IF NOT EXISTS idx_thumbnails_locator ON thumbnails(locator);
	`
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// sourceModTime returns the modification time of a local picture in unix
// nanoseconds, or 0 for remote or unreadable locators.
func (s *Store) sourceModTime(ctx context.Context, locator string) int64 {
	if mediatypes.IsRemote(locator) {
		return 0
	}
	info, err := filesystem.StatWithRetry(ctx, locator, s.retry)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// Lookup returns the stored thumbnail for key. Thumbnails older than their
// local source file, or whose JPEG has gone missing, are dropped and
// reported as misses.
func (s *Store) Lookup(ctx context.Context, key Key) (image.Image, bool) {
	key = key.normalized()
	qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var file string
	var modTime int64
	err := s.db.QueryRowContext(qctx,
		`SELECT file, source_mod_time FROM thumbnails WHERE locator = ? AND rotation = ? AND size = ?`,
		key.Locator, key.Rotation, key.Size).Scan(&file, &modTime)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.StoreLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		logging.Warn("thumbnail index lookup for %s failed: %v", key.Locator, err)
		metrics.StoreLookupsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	if current := s.sourceModTime(ctx, key.Locator); current > modTime {
		logging.Debug("Stored thumbnail for %s is stale", key.Locator)
		s.remove(ctx, key, file)
		metrics.StoreLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	img, err := imaging.Open(filepath.Join(s.dir, file))
	if err != nil {
		logging.Warn("Stored thumbnail for %s unreadable: %v", key.Locator, err)
		s.remove(ctx, key, file)
		metrics.StoreLookupsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	metrics.StoreLookupsTotal.WithLabelValues("hit").Inc()
	return img, true
}

// Save encodes img as JPEG and records it under key, replacing any
// previous thumbnail. The file is written atomically.
func (s *Store) Save(ctx context.Context, key Key, img image.Image) (err error) {
	key = key.normalized()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.StoreWritesTotal.WithLabelValues(status).Inc()
	}()

	tmp, err := os.CreateTemp(s.dir, ".thumb-*")
	if err != nil {
		return fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err = imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to stat thumbnail file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close thumbnail file: %w", err)
	}

	file := key.fileName()
	if err = os.Rename(tmpName, filepath.Join(s.dir, file)); err != nil {
		return fmt.Errorf("failed to store thumbnail file: %w", err)
	}

	qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	b := img.Bounds()
	_, err = s.db.ExecContext(qctx, `
		INSERT INTO thumbnails (locator, rotation, size, file, bytes, width, height, source_mod_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(locator, rotation, size) DO UPDATE SET
			file = excluded.file,
			bytes = excluded.bytes,
			width = excluded.width,
			height = excluded.height,
			source_mod_time = excluded.source_mod_time,
			created_at = strftime('%s', 'now')`,
		key.Locator, key.Rotation, key.Size, file, info.Size(), b.Dx(), b.Dy(), s.sourceModTime(ctx, key.Locator))
	if err != nil {
		return fmt.Errorf("failed to index thumbnail: %w", err)
	}

	logging.Debug("Thumbnail stored: %s -> %s", key.Locator, file)
	return nil
}

func (s *Store) remove(ctx context.Context, key Key, file string) {
	if err := os.Remove(filepath.Join(s.dir, file)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("failed to remove thumbnail file %s: %v", file, err)
	}

	qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(qctx,
		`DELETE FROM thumbnails WHERE locator = ? AND rotation = ? AND size = ?`,
		key.Locator, key.Rotation, key.Size); err != nil {
		logging.Warn("failed to remove thumbnail index row for %s: %v", key.Locator, err)
	}
}

// Invalidate drops every thumbnail of locator and returns how many were
// removed.
func (s *Store) Invalidate(ctx context.Context, locator string) (int, error) {
	qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(qctx,
		`SELECT rotation, size, file FROM thumbnails WHERE locator = ?`, locator)
	if err != nil {
		return 0, fmt.Errorf("failed to query thumbnails: %w", err)
	}

	type stored struct {
		key  Key
		file string
	}
	var found []stored
	for rows.Next() {
		st := stored{key: Key{Locator: locator}}
		if err := rows.Scan(&st.key.Rotation, &st.key.Size, &st.file); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan thumbnail row: %w", err)
		}
		found = append(found, st)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, st := range found {
		s.remove(ctx, st.key, st.file)
	}
	return len(found), nil
}

// Stats returns entry count and total JPEG bytes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(bytes), 0) FROM thumbnails`).Scan(&st.Entries, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read thumbnail stats: %w", err)
	}
	return st, nil
}
