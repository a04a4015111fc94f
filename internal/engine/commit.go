package engine

import (
	"context"
	"log"

	"scriptroom/api/internal/document"
)

type writeOp int

const (
	opUpsert writeOp = iota + 1
	opRemove
	opSeed
)

func (op writeOp) String() string {
	switch op {
	case opUpsert:
		return "upsert"
	case opRemove:
		return "remove"
	case opSeed:
		return "seed"
	default:
		return "write"
	}
}

type remoteWrite struct {
	op  writeOp
	tag writeTag
}

type laneKey struct {
	owner     string
	projectID string
}

// writeLane serializes remote writes for one project. At most one write is
// in flight; later requests collapse into next, and an upsert reads the
// project state only when it starts.
type writeLane struct {
	next *remoteWrite
}

// scheduleCommit re-arms the quiet-period timer for projectID. Caller holds e.mu.
func (e *Engine) scheduleCommit(projectID string) {
	e.pendingProject = projectID
	e.debounce.Schedule(e.commitDelay, e.fireCommit)
}

func (e *Engine) fireCommit(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.debounce.Fire(gen) {
		return
	}
	projectID := e.pendingProject
	e.pendingProject = ""
	e.dispatchUpsert(projectID)
}

// flushPending sends a still-pending commit right away. Caller holds e.mu.
func (e *Engine) flushPending() {
	if !e.debounce.Cancel() {
		return
	}
	projectID := e.pendingProject
	e.pendingProject = ""
	e.dispatchUpsert(projectID)
}

// dispatchUpsert commits the state of projectID. Caller holds e.mu.
func (e *Engine) dispatchUpsert(projectID string) {
	if e.indexOf(projectID) < 0 {
		return
	}
	tag := e.nextTag(projectID)
	e.setStatus(StatusSaving)
	e.enqueue(remoteWrite{op: opUpsert, tag: tag})
}

// dispatchRemove deletes projectID remotely. Caller holds e.mu.
func (e *Engine) dispatchRemove(projectID string) {
	tag := e.nextTag(projectID)
	e.setStatus(StatusSaving)
	e.enqueue(remoteWrite{op: opRemove, tag: tag})
}

func (e *Engine) nextTag(projectID string) writeTag {
	e.seq++
	return writeTag{owner: e.owner, projectID: projectID, seq: e.seq}
}

// enqueue starts w, or parks it behind the write already in flight for the
// same project. Caller holds e.mu.
func (e *Engine) enqueue(w remoteWrite) {
	key := laneKey{owner: w.tag.owner, projectID: w.tag.projectID}
	if lane, busy := e.lanes[key]; busy {
		lane.next = &w
		return
	}
	e.lanes[key] = &writeLane{}
	e.startWrite(w)
}

// startWrite sends w. Upserts take the project as it is now; an upsert whose
// project is gone, or belongs to a previous owner, is skipped. Caller holds
// e.mu.
func (e *Engine) startWrite(w remoteWrite) {
	var project document.Project
	if w.op != opRemove {
		idx := e.indexOf(w.tag.projectID)
		if w.tag.owner != e.owner || idx < 0 {
			e.advanceLane(w.tag)
			return
		}
		project = e.projects[idx].Clone()
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.remoteTimeout)
		var err error
		if w.op == opRemove {
			err = e.remote.RemoveProject(ctx, w.tag.owner, w.tag.projectID)
		} else {
			err = e.remote.UpsertProject(ctx, w.tag.owner, project)
		}
		cancel()
		e.finishWrite(w, err)
	}()
}

// advanceLane starts the write parked behind tag's project, if any. Caller
// holds e.mu.
func (e *Engine) advanceLane(tag writeTag) {
	key := laneKey{owner: tag.owner, projectID: tag.projectID}
	lane, ok := e.lanes[key]
	if !ok || lane.next == nil {
		delete(e.lanes, key)
		return
	}
	next := *lane.next
	lane.next = nil
	e.startWrite(next)
}

func (e *Engine) finishWrite(w remoteWrite, err error) {
	tag := w.tag
	if err != nil {
		log.Printf("engine: %s project %s for %s: %v", w.op, tag.projectID, tag.owner, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if w.op != opRemove && tag.owner == e.owner {
		if err != nil && e.indexOf(tag.projectID) >= 0 {
			e.unsaved[tag.projectID] = struct{}{}
		} else if err == nil {
			delete(e.unsaved, tag.projectID)
		}
	}
	e.advanceLane(tag)

	if w.op == opSeed || e.closed || tag.owner != e.owner || tag.seq != e.seq {
		return
	}
	if err != nil {
		e.lastErr = err.Error()
		e.setStatus(StatusError)
		return
	}
	e.lastErr = ""
	e.setStatus(StatusSaved)
}

// pushBestEffort seeds the remote with a fallback collection after a load
// found it empty. Seeds never touch the save status. A project that already
// has a write in flight is not seeded; that write carries newer state.
// Caller holds e.mu.
func (e *Engine) pushBestEffort(projects []document.Project) {
	for _, project := range projects {
		key := laneKey{owner: e.owner, projectID: project.ID}
		if _, busy := e.lanes[key]; busy {
			continue
		}
		e.lanes[key] = &writeLane{}
		e.startWrite(remoteWrite{op: opSeed, tag: writeTag{owner: e.owner, projectID: project.ID}})
	}
}

// Flush sends a pending commit immediately instead of waiting out the quiet
// period.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.flushPending()
}

// Retry re-sends every project whose last write failed, and re-arms the
// commit for the active project. It reports false when nothing failed.
func (e *Engine) Retry() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.phase != PhaseReady {
		return false
	}
	if e.status != StatusError && len(e.unsaved) == 0 {
		return false
	}

	rearmed := false
	e.setStatus(StatusIdle)
	for projectID := range e.unsaved {
		if projectID == e.activeID || e.indexOf(projectID) < 0 {
			continue
		}
		e.dispatchUpsert(projectID)
		rearmed = true
	}
	if e.indexOf(e.activeID) >= 0 {
		e.scheduleCommit(e.activeID)
		rearmed = true
	}
	return rearmed
}
