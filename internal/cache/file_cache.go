package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"scriptroom/api/internal/document"
)

// FileCache stores one JSON snapshot file per owner under dir.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(ownerID string) string {
	return filepath.Join(c.dir, url.PathEscape(snapshotKey(ownerID))+".json")
}

func (c *FileCache) LoadAll(_ context.Context, ownerID string) []document.Project {
	c.mu.Lock()
	payload, err := os.ReadFile(c.path(ownerID))
	c.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		log.Printf("cache: read snapshot file for %s: %v", ownerID, err)
		return nil
	}
	return decodeSnapshot(ownerID, payload)
}

// SaveAll writes to a temp file and renames it over the snapshot.
func (c *FileCache) SaveAll(_ context.Context, ownerID string, projects []document.Project) {
	payload, err := encodeSnapshot(projects)
	if err != nil {
		log.Printf("cache: encode snapshot for %s: %v", ownerID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.path(ownerID)
	tmp, err := os.CreateTemp(c.dir, ".snapshot-*")
	if err != nil {
		log.Printf("cache: create temp snapshot for %s: %v", ownerID, err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		log.Printf("cache: write temp snapshot for %s: %v", ownerID, err)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		log.Printf("cache: close temp snapshot for %s: %v", ownerID, err)
		return
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		log.Printf("cache: replace snapshot for %s: %v", ownerID, err)
	}
}
