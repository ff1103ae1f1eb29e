package engine

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the wall clock.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler is a virtual clock. Nothing fires until Advance moves
// time past a task's deadline.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	s       *ManualScheduler
	at      time.Duration
	seq     uint64
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &manualTask{s: s, at: s.now + d, seq: s.seq, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Now returns the elapsed virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of tasks that have neither fired nor been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due tasks in deadline order
// (ties in scheduling order). Tasks scheduled by fired tasks run too if
// their deadline falls inside the window. Callbacks run without the
// scheduler lock held.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()
	for {
		t := s.next(target)
		if t == nil {
			break
		}
		t.f()
	}
	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// RunAll fires tasks until none remain, advancing the clock as needed.
// It gives up after limit steps to guard against self-rescheduling loops
// and returns the number of steps taken.
func (s *ManualScheduler) RunAll(limit int) int {
	n := 0
	for ; n < limit; n++ {
		s.mu.Lock()
		s.compact()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return n
		}
		d := s.tasks[0].at - s.now
		s.mu.Unlock()
		s.Advance(d)
	}
	return n
}

func (s *ManualScheduler) next(target time.Duration) *manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compact()
	if len(s.tasks) == 0 || s.tasks[0].at > target {
		return nil
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	t.fired = true
	if t.at > s.now {
		s.now = t.at
	}
	return t
}

// compact drops stopped tasks and sorts the rest. Caller holds s.mu.
func (s *ManualScheduler) compact() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.tasks = live
	sort.Slice(s.tasks, func(i, j int) bool {
		if s.tasks[i].at != s.tasks[j].at {
			return s.tasks[i].at < s.tasks[j].at
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})
}
