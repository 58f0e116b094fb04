package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"photo-catalog/internal/filesystem"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/mediatypes"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/thumbstore"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
)

var log = logging.For("http")

// pathError carries the HTTP status a picture path resolved to.
type pathError struct {
	status  int
	message string
}

func (e *pathError) Error() string { return e.message }

// resolvePicture maps a request path below the picture directory to an
// absolute locator, rejecting traversal, directories and non-pictures.
func (h *Handlers) resolvePicture(r *http.Request, relPath string) (string, error) {
	if relPath == "" {
		return "", &pathError{http.StatusBadRequest, "Path is required"}
	}

	root, err := filepath.Abs(h.pictureDir)
	if err != nil {
		return "", &pathError{http.StatusInternalServerError, "Invalid picture directory"}
	}
	locator := filepath.Join(root, filepath.FromSlash(relPath))
	if !isSubPath(root, locator) {
		return "", &pathError{http.StatusBadRequest, "Invalid path"}
	}

	if !mediatypes.IsPicture(locator) {
		return "", &pathError{http.StatusBadRequest, "Unsupported file type"}
	}

	info, err := filesystem.StatWithRetry(r.Context(), locator, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &pathError{http.StatusNotFound, "File not found"}
		}
		log.Error("failed to stat %s: %v", locator, err)
		return "", &pathError{http.StatusInternalServerError, "Failed to access file"}
	}
	if info.IsDir() {
		return "", &pathError{http.StatusBadRequest, "Path is a directory"}
	}

	return locator, nil
}

func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writePathError(w http.ResponseWriter, err error) {
	var pe *pathError
	if errors.As(err, &pe) {
		http.Error(w, pe.message, pe.status)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// thumbnailOptions are the query parameters of a thumbnail request.
type thumbnailOptions struct {
	rotation float64
	priority thumbnail.Priority
	force    bool
}

func parseThumbnailOptions(r *http.Request) (thumbnailOptions, error) {
	q := r.URL.Query()
	opts := thumbnailOptions{priority: thumbnail.High}

	if s := q.Get("rotation"); s != "" {
		rotation, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid rotation %q", s)
		}
		opts.rotation = rotation
	}

	if s := q.Get("priority"); s != "" {
		p, ok := thumbnail.ParsePriority(strings.ToLower(s))
		if !ok {
			return opts, fmt.Errorf("invalid priority %q", s)
		}
		opts.priority = p
	}

	if s := q.Get("force"); s != "" {
		force, err := strconv.ParseBool(s)
		if err != nil {
			return opts, fmt.Errorf("invalid force %q", s)
		}
		opts.force = force
	}

	return opts, nil
}

// GetThumbnail queues a job for the requested picture and waits for a
// worker to render it. Query parameters: rotation (degrees), priority
// (high, medium, low; default high) and force (skip the durable store).
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	locator, err := h.resolvePicture(r, mux.Vars(r)["path"])
	if err != nil {
		writePathError(w, err)
		return
	}

	opts, err := parseThumbnailOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slot := thumbnail.NewMemorySlot(thumbnail.Picture{Locator: locator, Rotation: opts.rotation})
	h.queue.Enqueue(thumbnail.Job{Target: slot, Priority: opts.priority, Force: opts.force})

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	state, img, err := slot.Wait(ctx)
	if errors.Is(err, thumbnail.ErrDropped) {
		http.Error(w, "Thumbnail job was cancelled", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.queue.Cancel(slot)
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("thumbnail for %s timed out after %v", locator, h.requestTimeout)
			http.Error(w, "Thumbnail generation timed out", http.StatusGatewayTimeout)
		}
		return
	}

	if state == thumbnail.SlotError {
		w.Header().Set("X-Thumbnail-Error", "true")
		w.Header().Set("Cache-Control", "no-store")
		writeJPEG(w, img, http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJPEG(w, img, http.StatusOK)
}

func writeJPEG(w http.ResponseWriter, img image.Image, status int) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(status)
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(thumbstore.JPEGQuality)); err != nil {
		log.Debug("failed to write thumbnail: %v", err)
	}
}

// InvalidateThumbnail drops stored thumbnails and the cached full picture
// for a path so the next request renders from the source again.
func (h *Handlers) InvalidateThumbnail(w http.ResponseWriter, r *http.Request) {
	relPath := mux.Vars(r)["path"]
	if relPath == "" {
		writeJSONError(w, "Path is required", http.StatusBadRequest)
		return
	}

	root, err := filepath.Abs(h.pictureDir)
	if err != nil {
		writeJSONError(w, "Invalid picture directory", http.StatusInternalServerError)
		return
	}
	locator := filepath.Join(root, filepath.FromSlash(relPath))
	if !isSubPath(root, locator) {
		writeJSONError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	removed := 0
	if h.store != nil {
		if removed, err = h.store.Invalidate(r.Context(), locator); err != nil {
			log.Error("failed to invalidate %s: %v", locator, err)
			writeJSONError(w, "Failed to invalidate thumbnails", http.StatusInternalServerError)
			return
		}
	}
	evicted := h.cache.Remove(locator)

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"status":         "invalidated",
		"storedRemoved":  removed,
		"cacheRemoved":   evicted,
		"storeAvailable": h.store != nil,
	})
}
