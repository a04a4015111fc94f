// Package engine keeps one owner's project collection in memory and
// replicates it to a local snapshot cache and an authoritative remote store.
//
// Every change is written to the cache immediately and committed to the
// remote after a quiet period. Remote failures never block editing; they
// surface only through the save status.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"scriptroom/api/internal/document"
)

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

type SaveStatus string

const (
	StatusIdle   SaveStatus = "idle"
	StatusSaving SaveStatus = "saving"
	StatusSaved  SaveStatus = "saved"
	StatusError  SaveStatus = "error"
)

const (
	DefaultCommitDelay   = 800 * time.Millisecond
	DefaultRemoteTimeout = 10 * time.Second
)

// Remote is the authoritative per-owner project store.
type Remote interface {
	ListProjects(ctx context.Context, ownerID string) ([]document.Project, error)
	UpsertProject(ctx context.Context, ownerID string, project document.Project) error
	RemoveProject(ctx context.Context, ownerID, projectID string) error
}

// Cache is the local snapshot store. It reports no errors; an unreadable
// snapshot loads as empty.
type Cache interface {
	LoadAll(ctx context.Context, ownerID string) []document.Project
	SaveAll(ctx context.Context, ownerID string, projects []document.Project)
}

type Options struct {
	CommitDelay   time.Duration
	RemoteTimeout time.Duration
	Scheduler     Scheduler
}

// writeTag identifies a dispatched remote write. Results are applied to the
// save status only while the tag still matches the engine.
type writeTag struct {
	owner     string
	projectID string
	seq       uint64
}

type Engine struct {
	remote        Remote
	cache         Cache
	commitDelay   time.Duration
	remoteTimeout time.Duration

	mu             sync.Mutex
	owner          string
	phase          Phase
	status         SaveStatus
	lastErr        string
	projects       []document.Project
	activeID       string
	seq            uint64
	loadSeq        uint64
	debounce       *Debouncer
	pendingProject string
	closed         bool
	subs           map[int]chan Event
	nextSub        int
	lanes          map[laneKey]*writeLane
	// unsaved holds projects whose latest remote write failed.
	unsaved        map[string]struct{}

	inflight sync.WaitGroup
}

// New builds an engine for ownerID. It starts in the loading phase; call
// Load to populate it.
func New(ownerID string, remote Remote, cache Cache, opts Options) *Engine {
	if opts.CommitDelay <= 0 {
		opts.CommitDelay = DefaultCommitDelay
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = DefaultRemoteTimeout
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	return &Engine{
		remote:        remote,
		cache:         cache,
		commitDelay:   opts.CommitDelay,
		remoteTimeout: opts.RemoteTimeout,
		owner:         ownerID,
		phase:         PhaseLoading,
		status:        StatusIdle,
		debounce:      NewDebouncer(opts.Scheduler),
		subs:          make(map[int]chan Event),
		lanes:         make(map[laneKey]*writeLane),
		unsaved:       make(map[string]struct{}),
	}
}

// Load runs the initial load for the current owner: remote first, then the
// local snapshot, then a synthesized default project. It always leaves the
// engine ready.
func (e *Engine) Load(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	owner := e.owner
	e.loadSeq++
	loadSeq := e.loadSeq
	e.phase = PhaseLoading
	e.notify()
	e.mu.Unlock()

	projects, pushBack := e.fetchInitial(ctx, owner)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.owner != owner || e.loadSeq != loadSeq {
		return
	}
	e.projects = projects
	e.activeID = ""
	if len(projects) > 0 {
		e.activeID = projects[0].ID
	}
	e.phase = PhaseReady
	e.status = StatusIdle
	e.lastErr = ""
	e.unsaved = make(map[string]struct{})
	e.saveLocal()
	if pushBack {
		e.pushBestEffort(projects)
	}
	e.notify()
}

func (e *Engine) fetchInitial(ctx context.Context, owner string) ([]document.Project, bool) {
	listCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	remote, err := e.remote.ListProjects(listCtx, owner)
	cancel()

	pushBack := true
	if err != nil {
		log.Printf("engine: list projects for %s failed, using local snapshot: %v", owner, err)
		pushBack = false
	} else if projects := usableProjects(remote); len(projects) > 0 {
		return projects, false
	}

	projects := usableProjects(e.cache.LoadAll(ctx, owner))
	if len(projects) == 0 {
		projects = []document.Project{document.CreateDefaultProject()}
	}
	return projects, pushBack
}

// usableProjects drops projects that break the collection invariants
// (empty content, duplicate ids) while keeping order.
func usableProjects(projects []document.Project) []document.Project {
	out := make([]document.Project, 0, len(projects))
	seen := make(map[string]struct{}, len(projects))
	for _, project := range projects {
		if err := document.Validate(project); err != nil {
			log.Printf("engine: ignoring stored project: %v", err)
			continue
		}
		if _, dup := seen[project.ID]; dup {
			continue
		}
		seen[project.ID] = struct{}{}
		out = append(out, project)
	}
	return out
}

// SetOwner switches the engine to another owner. Pending commits for the
// previous owner are dropped and in-flight results are ignored.
func (e *Engine) SetOwner(ctx context.Context, ownerID string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.debounce.Cancel()
	e.pendingProject = ""
	e.owner = ownerID
	e.seq++
	e.projects = nil
	e.activeID = ""
	e.status = StatusIdle
	e.lastErr = ""
	e.unsaved = make(map[string]struct{})
	e.mu.Unlock()

	e.Load(ctx)
}

// Close cancels any pending commit and waits for dispatched writes.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.debounce.Cancel()
	e.mu.Unlock()

	e.inflight.Wait()

	e.mu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()
}

// Wait blocks until every dispatched remote write has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// saveLocal writes the whole collection to the cache. Callers hold e.mu, so
// cache writes happen in the same order as the changes behind them.
func (e *Engine) saveLocal() {
	ctx, cancel := context.WithTimeout(context.Background(), e.remoteTimeout)
	defer cancel()
	e.cache.SaveAll(ctx, e.owner, cloneProjects(e.projects))
}

func (e *Engine) setStatus(status SaveStatus) {
	if e.status == status {
		return
	}
	e.status = status
	e.notify()
}

func (e *Engine) indexOf(projectID string) int {
	for i, project := range e.projects {
		if project.ID == projectID {
			return i
		}
	}
	return -1
}

func cloneProjects(projects []document.Project) []document.Project {
	out := make([]document.Project, len(projects))
	for i, project := range projects {
		out[i] = project.Clone()
	}
	return out
}
