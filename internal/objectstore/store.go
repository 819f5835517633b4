// Package objectstore stores uploaded documents in S3-compatible object storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrDisabled is returned when no object storage backend is configured.
var ErrDisabled = errors.New("objectstore: uploads are disabled")

// Storage persists objects under a key.
type Storage interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
}

// ObjectKey builds "<user_id>/<unix_ms>-<file name>" for an upload.
func ObjectKey(userID string, now time.Time, filename string) string {
	return userID + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + SanitizeFileName(filename)
}

// SanitizeFileName strips directories and characters that would split the object key.
func SanitizeFileName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r < 0x20:
			return -1
		case r == ' ':
			return '_'
		default:
			return r
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}

// Object is a stored blob kept by MemoryStore.
type Object struct {
	Body        []byte
	ContentType string
}

// MemoryStore keeps objects in process memory. Used when S3 is not configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Put stores the body under key.
func (m *MemoryStore) Put(_ context.Context, key string, body io.ReadSeeker, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, errCopy := io.Copy(&buf, body); errCopy != nil {
		return fmt.Errorf("objectstore: memory put: %w", errCopy)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Body: buf.Bytes(), ContentType: contentType}
	return nil
}

// Get returns the object stored under key.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
