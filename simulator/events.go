package simulator

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is returned for negative delays, past absolute times and
// nil actions.
var ErrInvalidArgument = errors.New("invalid argument")

// Event is a callback bound to a point in virtual time.
type Event struct {
	Time   float64 // Simulation time in seconds
	Seq    uint64  // Tie-break for equal times, assigned at schedule time
	Action func()
	index  int // Index in the priority queue, -1 once fired or cancelled
}

// EventHandle identifies a scheduled event so it can be cancelled.
type EventHandle struct {
	event *Event
}

// Time returns the time the event was scheduled for.
func (h EventHandle) Time() float64 {
	if h.event == nil {
		return math.NaN()
	}
	return h.event.Time
}

// Pending reports whether the event is still waiting to fire.
func (h EventHandle) Pending() bool {
	return h.event != nil && h.event.index >= 0
}

// EventQueue implements a priority queue ordered by (Time, Seq)
type EventQueue struct {
	events []*Event
}

func NewEventQueue() *EventQueue {
	eq := &EventQueue{
		events: make([]*Event, 0),
	}
	heap.Init(eq)
	return eq
}

// Len returns the number of events in the queue
func (eq EventQueue) Len() int {
	return len(eq.events)
}

// Less orders by timestamp, then by insertion sequence
func (eq EventQueue) Less(i, j int) bool {
	a, b := eq.events[i], eq.events[j]
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.Seq < b.Seq
}

// Swap swaps two events in the queue
func (eq EventQueue) Swap(i, j int) {
	eq.events[i], eq.events[j] = eq.events[j], eq.events[i]
	eq.events[i].index = i
	eq.events[j].index = j
}

// Push adds an event to the queue
func (eq *EventQueue) Push(x interface{}) {
	n := len(eq.events)
	event := x.(*Event)
	event.index = n
	eq.events = append(eq.events, event)
}

// Pop removes and returns the highest priority event
func (eq *EventQueue) Pop() interface{} {
	old := eq.events
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	event.index = -1
	eq.events = old[0 : n-1]
	return event
}

// Enqueue adds an event to the queue
func (eq *EventQueue) Enqueue(event *Event) {
	heap.Push(eq, event)
}

// Dequeue removes and returns the next event
func (eq *EventQueue) Dequeue() *Event {
	if eq.Len() == 0 {
		return nil
	}
	return heap.Pop(eq).(*Event)
}

// Peek returns the next event without removing it
func (eq *EventQueue) Peek() *Event {
	if eq.Len() == 0 {
		return nil
	}
	return eq.events[0]
}

// Remove takes a pending event out of the queue. It returns false when the
// event already fired or was removed before.
func (eq *EventQueue) Remove(event *Event) bool {
	if event == nil || event.index < 0 || event.index >= len(eq.events) || eq.events[event.index] != event {
		return false
	}
	heap.Remove(eq, event.index)
	return true
}

// SimulationClock holds virtual time. It only moves forward.
type SimulationClock struct {
	currentTime float64
}

// NewSimulationClock creates a clock at t=0
func NewSimulationClock() *SimulationClock {
	return &SimulationClock{}
}

// CurrentTime returns the current simulation time
func (sc *SimulationClock) CurrentTime() float64 {
	return sc.currentTime
}

// advanceTo moves the clock to t; earlier times are ignored.
func (sc *SimulationClock) advanceTo(t float64) {
	if t > sc.currentTime {
		sc.currentTime = t
	}
}

// String returns a string representation of the clock
func (sc *SimulationClock) String() string {
	return fmt.Sprintf("SimTime: %.6fs", sc.currentTime)
}

// EventStatistics tracks event processing counters
type EventStatistics struct {
	Scheduled int64
	Executed  int64
	Cancelled int64
}

// String returns a string representation of the statistics
func (es EventStatistics) String() string {
	return fmt.Sprintf("Events: scheduled=%d executed=%d cancelled=%d", es.Scheduled, es.Executed, es.Cancelled)
}
