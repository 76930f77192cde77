// Package blobstore stores opaque files (payment QR codes, payment proofs)
// and returns a public URL for each. It provides an in-memory store for
// development and tests, a Google Cloud Storage store, and an Echo handler
// that serves in-memory blobs.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrInvalidPath  = errors.New("blob path is invalid")
	ErrEmptyBlob    = errors.New("blob is empty")
)

// MaxFileSize is the maximum allowed blob size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// Store is the contract every backend satisfies.
type Store interface {
	// Put writes data at path and returns its public URL.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

func checkPut(path string, data []byte) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	if len(data) == 0 {
		return ErrEmptyBlob
	}
	if len(data) > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

type storedBlob struct {
	contentType string
	content     []byte
	createdAt   time.Time
}

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	baseURL string
}

// NewMemoryStore returns a store whose URLs are baseURL + "/blobs/" + path.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string]*storedBlob),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *MemoryStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	if err := checkPut(path, data); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[path] = &storedBlob{contentType: contentType, content: buf, createdAt: time.Now().UTC()}
	s.mu.Unlock()

	return s.baseURL + "/blobs/" + path, nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, path)
	return nil
}

// Get returns the content and content type stored at path.
func (s *MemoryStore) Get(path string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[path]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return b.content, b.contentType, nil
}

// Len reports how many blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Handler serves MemoryStore blobs over HTTP.
type Handler struct {
	store *MemoryStore
}

func NewHandler(store *MemoryStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts GET /blobs/* on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/blobs/*", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	path := c.Param("*")
	data, contentType, err := h.store.Get(path)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("read blob: %v", err))
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return c.Blob(http.StatusOK, contentType, data)
}
