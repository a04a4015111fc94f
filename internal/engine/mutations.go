package engine

import "scriptroom/api/internal/document"

// mutate applies fn to the active project. A change is visible immediately,
// marks the collection dirty, is written to the local cache, and re-arms the
// remote commit. No-ops touch nothing.
func (e *Engine) mutate(fn func(document.Project) (document.Project, bool)) (document.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.phase != PhaseReady {
		return document.Project{}, false
	}
	idx := e.indexOf(e.activeID)
	if idx < 0 {
		return document.Project{}, false
	}

	next, changed := fn(e.projects[idx])
	if !changed {
		return e.projects[idx].Clone(), false
	}

	projects := make([]document.Project, len(e.projects))
	copy(projects, e.projects)
	projects[idx] = next
	e.projects = projects

	e.seq++
	e.setStatus(StatusIdle)
	e.saveLocal()
	e.scheduleCommit(next.ID)
	return next.Clone(), true
}

func (e *Engine) UpdateMetadataField(field document.MetadataField, value string) (document.Project, bool) {
	return e.mutate(func(p document.Project) (document.Project, bool) {
		return document.UpdateMetadataField(p, field, value)
	})
}

func (e *Engine) UpdateBlockContent(blockID, text string) (document.Project, bool) {
	return e.mutate(func(p document.Project) (document.Project, bool) {
		return document.UpdateBlockContent(p, blockID, text)
	})
}

func (e *Engine) ChangeBlockType(blockID string, blockType document.BlockType) (document.Project, bool) {
	return e.mutate(func(p document.Project) (document.Project, bool) {
		return document.ChangeBlockType(p, blockID, blockType)
	})
}

func (e *Engine) InsertBlockAfter(afterID string) (document.Block, bool) {
	var inserted document.Block
	_, changed := e.mutate(func(p document.Project) (document.Project, bool) {
		next, block, ok := document.InsertBlockAfter(p, afterID)
		inserted = block
		return next, ok
	})
	return inserted, changed
}

func (e *Engine) RemoveBlock(blockID string) (document.Project, bool) {
	return e.mutate(func(p document.Project) (document.Project, bool) {
		return document.RemoveBlock(p, blockID)
	})
}

// InsertGenerated adds text as a new action block after afterID, or after
// the last block when afterID is empty. It goes through the regular insert
// path, so the new block is committed like any other edit.
func (e *Engine) InsertGenerated(afterID, text string) (document.Block, bool) {
	var inserted document.Block
	_, changed := e.mutate(func(p document.Project) (document.Project, bool) {
		anchor := afterID
		if anchor == "" && len(p.Content) > 0 {
			anchor = p.Content[len(p.Content)-1].ID
		}
		next, block, ok := document.InsertBlockAfter(p, anchor)
		if !ok {
			return p, false
		}
		next, _ = document.ChangeBlockType(next, block.ID, document.BlockAction)
		next, _ = document.UpdateBlockContent(next, block.ID, text)
		inserted = next.Content[next.BlockIndex(block.ID)]
		return next, true
	})
	return inserted, changed
}

// CreateProject prepends a new project, makes it active, and upserts it
// without waiting for the quiet period.
func (e *Engine) CreateProject(title string) (document.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.phase != PhaseReady {
		return document.Project{}, false
	}

	e.flushPending()

	project := document.NewProject(title)
	projects := make([]document.Project, 0, len(e.projects)+1)
	projects = append(projects, project)
	projects = append(projects, e.projects...)
	e.projects = projects
	e.activeID = project.ID

	e.saveLocal()
	e.dispatchUpsert(project.ID)
	e.notify()
	return project.Clone(), true
}

// DeleteProject removes projectID locally and remotely. Confirmation is the
// caller's job. A failed remote delete is reported through the save status;
// the project stays deleted locally.
func (e *Engine) DeleteProject(projectID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.phase != PhaseReady {
		return false
	}
	idx := e.indexOf(projectID)
	if idx < 0 {
		return false
	}

	if e.pendingProject == projectID {
		e.debounce.Cancel()
		e.pendingProject = ""
	}

	projects := make([]document.Project, 0, len(e.projects)-1)
	projects = append(projects, e.projects[:idx]...)
	projects = append(projects, e.projects[idx+1:]...)
	e.projects = projects

	if e.activeID == projectID {
		e.activeID = ""
		if len(projects) > 0 {
			e.activeID = projects[0].ID
		}
	}

	delete(e.unsaved, projectID)
	e.saveLocal()
	e.dispatchRemove(projectID)
	e.notify()
	return true
}

// SelectProject makes projectID active. A commit still waiting on the
// previous project is sent right away rather than dropped, and a selected
// project whose last write failed is sent again.
func (e *Engine) SelectProject(projectID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.phase != PhaseReady || e.indexOf(projectID) < 0 {
		return false
	}
	if e.activeID == projectID {
		return true
	}
	e.flushPending()
	e.activeID = projectID
	if _, failed := e.unsaved[projectID]; failed {
		e.dispatchUpsert(projectID)
	}
	e.notify()
	return true
}
