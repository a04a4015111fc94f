// Package cache holds the local snapshot of an owner's project collection.
// Snapshots are a fast-start and offline fallback; they are never
// authoritative and unreadable snapshots are treated as absent.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"scriptroom/api/internal/document"
)

const keyPrefix = "scriptroom:projects:"

// Cache is the snapshot store the sync engine writes on every change.
type Cache interface {
	LoadAll(ctx context.Context, ownerID string) []document.Project
	SaveAll(ctx context.Context, ownerID string, projects []document.Project)
}

func snapshotKey(ownerID string) string {
	return keyPrefix + ownerID
}

func encodeSnapshot(projects []document.Project) ([]byte, error) {
	if projects == nil {
		projects = []document.Project{}
	}
	return json.Marshal(projects)
}

// decodeSnapshot drops malformed payloads and structurally invalid projects.
func decodeSnapshot(ownerID string, payload []byte) []document.Project {
	if len(payload) == 0 {
		return nil
	}
	var projects []document.Project
	if err := json.Unmarshal(payload, &projects); err != nil {
		log.Printf("cache: discarding unreadable snapshot for %s: %v", ownerID, err)
		return nil
	}
	valid := make([]document.Project, 0, len(projects))
	seen := make(map[string]struct{}, len(projects))
	for _, project := range projects {
		if err := document.Validate(project); err != nil {
			log.Printf("cache: skipping cached project: %v", err)
			continue
		}
		if _, dup := seen[project.ID]; dup {
			continue
		}
		seen[project.ID] = struct{}{}
		valid = append(valid, project)
	}
	return valid
}

// Memory is an in-process Cache, used when neither Redis nor a cache
// directory is configured.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]byte)}
}

func (m *Memory) LoadAll(_ context.Context, ownerID string) []document.Project {
	m.mu.Lock()
	payload := m.snapshots[ownerID]
	m.mu.Unlock()
	return decodeSnapshot(ownerID, payload)
}

func (m *Memory) SaveAll(_ context.Context, ownerID string, projects []document.Project) {
	payload, err := encodeSnapshot(projects)
	if err != nil {
		log.Printf("cache: encode snapshot for %s: %v", ownerID, err)
		return
	}
	m.mu.Lock()
	m.snapshots[ownerID] = payload
	m.mu.Unlock()
}
