package engine

import (
	"context"
	"sync"
	"time"

	"scriptroom/api/internal/document"
)

type upsertCall struct {
	owner   string
	project document.Project
}

type removeCall struct {
	owner     string
	projectID string
}

type fakeRemote struct {
	listFn   func(context.Context, string) ([]document.Project, error)
	upsertFn func(context.Context, string, document.Project) error
	removeFn func(context.Context, string, string) error

	mu      sync.Mutex
	upserts []upsertCall
	removes []removeCall
}

func (f *fakeRemote) ListProjects(ctx context.Context, ownerID string) ([]document.Project, error) {
	if f.listFn != nil {
		return f.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (f *fakeRemote) UpsertProject(ctx context.Context, ownerID string, project document.Project) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, upsertCall{owner: ownerID, project: project})
	f.mu.Unlock()
	if f.upsertFn != nil {
		return f.upsertFn(ctx, ownerID, project)
	}
	return nil
}

func (f *fakeRemote) RemoveProject(ctx context.Context, ownerID, projectID string) error {
	f.mu.Lock()
	f.removes = append(f.removes, removeCall{owner: ownerID, projectID: projectID})
	f.mu.Unlock()
	if f.removeFn != nil {
		return f.removeFn(ctx, ownerID, projectID)
	}
	return nil
}

func (f *fakeRemote) upsertCalls() []upsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upsertCall(nil), f.upserts...)
}

func (f *fakeRemote) removeCalls() []removeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]removeCall(nil), f.removes...)
}

type fakeCache struct {
	mu        sync.Mutex
	snapshots map[string][]document.Project
	saves     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[string][]document.Project)}
}

func (c *fakeCache) LoadAll(_ context.Context, ownerID string) []document.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneProjects(c.snapshots[ownerID])
}

func (c *fakeCache) SaveAll(_ context.Context, ownerID string, projects []document.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.snapshots[ownerID] = cloneProjects(projects)
}

func (c *fakeCache) snapshot(ownerID string) []document.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneProjects(c.snapshots[ownerID])
}

func (c *fakeCache) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

// fakeScheduler only runs tasks when the test fires them.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	sched     *fakeScheduler
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{sched: s, delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (t *fakeTask) Cancel() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return true
}

// FireAll runs every task that is neither cancelled nor already run and
// returns how many ran.
func (s *fakeScheduler) FireAll() int {
	s.mu.Lock()
	var due []*fakeTask
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			task.fired = true
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		task.fn()
	}
	return len(due)
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			n++
		}
	}
	return n
}

func (s *fakeScheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func project(id, title string, blocks ...document.Block) document.Project {
	if len(blocks) == 0 {
		blocks = []document.Block{{ID: id + "-b1", Type: document.BlockSceneHeading, Content: "INT. " + title + " - DAY"}}
	}
	return document.Project{
		ID:           id,
		Metadata:     document.Metadata{Title: title, Country: document.CountryNigeria},
		Content:      blocks,
		LastModified: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func projectIDs(projects []document.Project) []string {
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}
