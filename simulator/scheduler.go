package simulator

import (
	"fmt"
	"math"
)

// Scheduler is the discrete-event kernel. Everything in a run schedules its
// work through it and all actions execute on the goroutine calling RunUntil.
type Scheduler struct {
	queue   *EventQueue
	clock   *SimulationClock
	stats   EventStatistics
	nextSeq uint64
	running bool

	// afterEvent, when set, is invoked after every executed action.
	afterEvent func(now float64)
}

// NewScheduler creates an empty scheduler at virtual time zero
func NewScheduler() *Scheduler {
	return &Scheduler{
		queue: NewEventQueue(),
		clock: NewSimulationClock(),
	}
}

// Now returns the current virtual time in seconds
func (s *Scheduler) Now() float64 {
	return s.clock.CurrentTime()
}

// Schedule runs action at Now()+delay.
func (s *Scheduler) Schedule(delay float64, action func()) (EventHandle, error) {
	if math.IsNaN(delay) || delay < 0 {
		return EventHandle{}, fmt.Errorf("schedule with delay %v: %w", delay, ErrInvalidArgument)
	}
	return s.ScheduleAt(s.Now()+delay, action)
}

// ScheduleAt runs action at the absolute virtual time t.
func (s *Scheduler) ScheduleAt(t float64, action func()) (EventHandle, error) {
	if action == nil {
		return EventHandle{}, fmt.Errorf("schedule nil action: %w", ErrInvalidArgument)
	}
	if math.IsNaN(t) || t < s.Now() {
		return EventHandle{}, fmt.Errorf("schedule at %v before now %v: %w", t, s.Now(), ErrInvalidArgument)
	}

	event := &Event{
		Time:   t,
		Seq:    s.nextSeq,
		Action: action,
	}
	s.nextSeq++
	s.queue.Enqueue(event)
	s.stats.Scheduled++

	return EventHandle{event: event}, nil
}

// Cancel removes a pending event. Cancelling a fired or already cancelled
// event is a no-op and returns false.
func (s *Scheduler) Cancel(h EventHandle) bool {
	if !s.queue.Remove(h.event) {
		return false
	}
	s.stats.Cancelled++
	return true
}

// RunUntil drains events in (time, sequence) order until the queue is empty
// or the next event lies after stopTime. It returns the number of actions
// executed. When stopTime is finite the clock ends at stopTime, so a later
// RunUntil continues from that boundary.
func (s *Scheduler) RunUntil(stopTime float64) int {
	if s.running {
		// Nested drains from inside an action would reorder execution.
		return 0
	}
	s.running = true
	defer func() { s.running = false }()

	executed := 0
	for {
		next := s.queue.Peek()
		if next == nil || next.Time > stopTime {
			break
		}

		event := s.queue.Dequeue()
		s.clock.advanceTo(event.Time)

		event.Action()
		executed++
		s.stats.Executed++

		if s.afterEvent != nil {
			s.afterEvent(event.Time)
		}
	}

	if !math.IsInf(stopTime, 1) && !math.IsNaN(stopTime) {
		s.clock.advanceTo(stopTime)
	}
	return executed
}

// Pending returns the number of events waiting to fire
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// NextEventTime returns the time of the earliest pending event
func (s *Scheduler) NextEventTime() (float64, bool) {
	next := s.queue.Peek()
	if next == nil {
		return 0, false
	}
	return next.Time, true
}

// Stats returns a copy of the event counters
func (s *Scheduler) Stats() EventStatistics {
	return s.stats
}

// OnEventExecuted registers a hook called after each executed action.
func (s *Scheduler) OnEventExecuted(fn func(now float64)) {
	s.afterEvent = fn
}

// String returns a short status line
func (s *Scheduler) String() string {
	return fmt.Sprintf("%s, pending=%d, %s", s.clock.String(), s.queue.Len(), s.stats.String())
}
