package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"scriptroom/api/internal/assist"
	"scriptroom/api/internal/cache"
	"scriptroom/api/internal/config"
	"scriptroom/api/internal/document"
	"scriptroom/api/internal/export"
	"scriptroom/api/internal/search"
)

type fakeStore struct {
	mu       sync.Mutex
	projects map[string][]document.Project
	removed  []string
	pingFn   func(context.Context) error
	upsertFn func(context.Context, string, document.Project) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{projects: make(map[string][]document.Project)}
}

func (f *fakeStore) ListProjects(_ context.Context, ownerID string) ([]document.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]document.Project(nil), f.projects[ownerID]...), nil
}

func (f *fakeStore) UpsertProject(ctx context.Context, ownerID string, project document.Project) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(ctx, ownerID, project); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.projects[ownerID]
	for i, existing := range list {
		if existing.ID == project.ID {
			list[i] = project.Clone()
			return nil
		}
	}
	f.projects[ownerID] = append([]document.Project{project.Clone()}, list...)
	return nil
}

func (f *fakeStore) RemoveProject(_ context.Context, ownerID, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.projects[ownerID]
	for i, existing := range list {
		if existing.ID == projectID {
			f.projects[ownerID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	f.removed = append(f.removed, projectID)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) stored(ownerID, projectID string) (document.Project, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects[ownerID] {
		if p.ID == projectID {
			return p.Clone(), true
		}
	}
	return document.Project{}, false
}

func (f *fakeStore) seed(ownerID string, projects ...document.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[ownerID] = append(f.projects[ownerID], projects...)
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
	queries []search.Query
}

func (f *fakeIndex) IndexProject(ownerID string, p document.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, ownerID+"/"+p.ID)
}

func (f *fakeIndex) DeleteProject(ownerID, projectID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ownerID+"/"+projectID)
}

func (f *fakeIndex) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{ProjectID: "prj_hit", Title: "Hit"}}, Total: 1, Query: q.Text}
}

type fakeExporter struct {
	exportFn func(context.Context, string, document.Project, export.Format) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, ownerID string, project document.Project, format export.Format) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(ctx, ownerID, project, format)
	}
	return &export.Result{
		Data:     []byte(export.ToFountain(project)),
		Filename: "script.fountain",
		MimeType: "text/plain; charset=utf-8",
	}, nil
}

type fakeAssist struct {
	mu         sync.Mutex
	calls      int
	generateFn func(context.Context, assist.Request) (assist.Result, error)
}

func (f *fakeAssist) Generate(ctx context.Context, req assist.Request) (assist.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.generateFn != nil {
		return f.generateFn(ctx, req)
	}
	return assist.Result{Disabled: true}, nil
}

type testDeps struct {
	store    *fakeStore
	index    *fakeIndex
	exporter *fakeExporter
	assist   *fakeAssist
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:    newFakeStore(),
		index:    &fakeIndex{},
		exporter: &fakeExporter{},
		assist:   &fakeAssist{},
	}
	cfg := config.Config{
		JWTSecret:   "test-secret",
		AccessTTL:   time.Hour,
		CommitDelay: time.Hour,
	}
	svc := New(cfg, deps.store, cache.NewMemory(), deps.index, deps.exporter, deps.assist)
	t.Cleanup(svc.Shutdown)
	return svc, deps
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func scriptProject(id, title string) document.Project {
	return document.Project{
		ID:       id,
		Metadata: document.Metadata{Title: title, Country: document.CountryNigeria},
		Content: []document.Block{
			{ID: id + "-h", Type: document.BlockSceneHeading, Content: "INT. OFFICE - DAY"},
			{ID: id + "-a", Type: document.BlockAction, Content: "Phones ring."},
		},
		LastModified: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}
