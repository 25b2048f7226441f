package speech

import "time"

// Task is a scheduled callback that can be cancelled.
type Task interface {
	Stop() bool
}

// Scheduler runs a callback after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// RealScheduler schedules on the runtime timer wheel.
type RealScheduler struct{}

// AfterFunc implements Scheduler.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// timerSlot owns at most one pending task. Arm cancels before rescheduling.
type timerSlot struct {
	sched Scheduler
	task  Task
	gen   uint64
}

// arm replaces any pending task and returns the generation the callback must match.
func (s *timerSlot) arm(d time.Duration, f func(gen uint64)) {
	s.cancel()
	gen := s.gen
	s.task = s.sched.AfterFunc(d, func() { f(gen) })
}

func (s *timerSlot) cancel() {
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
	s.gen++
}

func (s *timerSlot) current(gen uint64) bool {
	return s.task != nil && s.gen == gen
}
