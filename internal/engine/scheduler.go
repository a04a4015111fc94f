package engine

import "time"

// Scheduler runs fn once after delay unless the returned handle is cancelled.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
}

type Handle interface {
	// Cancel reports whether the task was stopped before it ran.
	Cancel() bool
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) Handle {
	return timerHandle{timer: time.AfterFunc(delay, fn)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Cancel() bool {
	return h.timer.Stop()
}

// Debouncer keeps at most one scheduled task; scheduling again cancels the
// previous one. It is not safe for concurrent use, the owner serializes
// access.
//
// A timer can fire while its owner is busy cancelling it, so fired tasks
// receive a generation and must confirm it with Fire before acting.
type Debouncer struct {
	sched  Scheduler
	handle Handle
	gen    uint64
}

func NewDebouncer(sched Scheduler) *Debouncer {
	return &Debouncer{sched: sched}
}

func (d *Debouncer) Schedule(delay time.Duration, fn func(gen uint64)) {
	d.Cancel()
	d.gen++
	gen := d.gen
	d.handle = d.sched.Schedule(delay, func() { fn(gen) })
}

// Cancel drops the pending task and reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	if d.handle == nil {
		return false
	}
	d.handle.Cancel()
	d.handle = nil
	d.gen++
	return true
}

// Fire reports whether gen is still the pending task and, if so, clears it.
func (d *Debouncer) Fire(gen uint64) bool {
	if d.handle == nil || gen != d.gen {
		return false
	}
	d.handle = nil
	return true
}

func (d *Debouncer) Pending() bool {
	return d.handle != nil
}
