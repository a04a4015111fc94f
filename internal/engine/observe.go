package engine

import (
	"time"

	"scriptroom/api/internal/document"
)

// Event describes the engine state after a phase, status, or selection change.
type Event struct {
	Owner    string     `json:"ownerId"`
	Phase    Phase      `json:"phase"`
	Status   SaveStatus `json:"status"`
	ActiveID string     `json:"activeId,omitempty"`
	Error    string     `json:"error,omitempty"`
	At       time.Time  `json:"at"`
}

type Snapshot struct {
	Owner     string             `json:"ownerId"`
	Phase     Phase              `json:"phase"`
	Status    SaveStatus         `json:"status"`
	ActiveID  string             `json:"activeId,omitempty"`
	LastError string             `json:"lastError,omitempty"`
	Projects  []document.Project `json:"projects"`
}

const subscriberBuffer = 16

// Subscribe returns a channel of events and a function that stops delivery.
// Slow subscribers miss events rather than stall the engine.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	ch <- e.event()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			close(sub)
			delete(e.subs, id)
		}
	}
}

// notify fans the current state out to subscribers. Caller holds e.mu.
func (e *Engine) notify() {
	if len(e.subs) == 0 {
		return
	}
	ev := e.event()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) event() Event {
	return Event{
		Owner:    e.owner,
		Phase:    e.phase,
		Status:   e.status,
		ActiveID: e.activeID,
		Error:    e.lastErr,
		At:       time.Now().UTC(),
	}
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Owner:     e.owner,
		Phase:     e.phase,
		Status:    e.status,
		ActiveID:  e.activeID,
		LastError: e.lastErr,
		Projects:  cloneProjects(e.projects),
	}
}

// Active returns a copy of the active project.
func (e *Engine) Active() (document.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexOf(e.activeID)
	if idx < 0 {
		return document.Project{}, false
	}
	return e.projects[idx].Clone(), true
}

// Project returns a copy of any project in the collection.
func (e *Engine) Project(projectID string) (document.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexOf(projectID)
	if idx < 0 {
		return document.Project{}, false
	}
	return e.projects[idx].Clone(), true
}

func (e *Engine) Status() SaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Owner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}
