package simulator

import (
	"errors"
	"math"
	"testing"
)

func TestEventQueue(t *testing.T) {
	eq := NewEventQueue()

	if eq.Len() != 0 {
		t.Errorf("Expected empty queue, got length %d", eq.Len())
	}

	// Add events in random order
	events := []*Event{
		{Seq: 3, Time: 3.0},
		{Seq: 1, Time: 1.0},
		{Seq: 2, Time: 2.0},
		{Seq: 5, Time: 5.0},
		{Seq: 4, Time: 4.0},
	}

	for _, event := range events {
		eq.Enqueue(event)
	}

	if eq.Len() != 5 {
		t.Errorf("Expected 5 events, got %d", eq.Len())
	}

	// Dequeue should return events in timestamp order
	expectedOrder := []uint64{1, 2, 3, 4, 5}
	for i, expected := range expectedOrder {
		event := eq.Dequeue()
		if event == nil {
			t.Fatalf("Expected event %d, got nil", i)
		}
		if event.Seq != expected {
			t.Errorf("Expected event %d at position %d, got %d", expected, i, event.Seq)
		}
	}

	if eq.Len() != 0 {
		t.Errorf("Expected empty queue after dequeuing all, got length %d", eq.Len())
	}

	if event := eq.Dequeue(); event != nil {
		t.Error("Expected nil from empty queue")
	}
}

func TestEventQueuePeek(t *testing.T) {
	eq := NewEventQueue()

	if event := eq.Peek(); event != nil {
		t.Error("Expected nil peek from empty queue")
	}

	eq.Enqueue(&Event{Seq: 2, Time: 2.0})
	eq.Enqueue(&Event{Seq: 1, Time: 1.0})

	event := eq.Peek()
	if event == nil {
		t.Fatal("Expected event from peek")
	}
	if event.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", event.Seq)
	}

	if eq.Len() != 2 {
		t.Errorf("Expected size 2 after peek, got %d", eq.Len())
	}
}

func TestEventQueueTieBreak(t *testing.T) {
	eq := NewEventQueue()

	// Same timestamp, inserted out of sequence order
	eq.Enqueue(&Event{Seq: 2, Time: 1.0})
	eq.Enqueue(&Event{Seq: 0, Time: 1.0})
	eq.Enqueue(&Event{Seq: 1, Time: 1.0})

	for want := uint64(0); want < 3; want++ {
		event := eq.Dequeue()
		if event.Seq != want {
			t.Errorf("Expected seq %d, got %d", want, event.Seq)
		}
	}
}

func TestEventQueueRemove(t *testing.T) {
	eq := NewEventQueue()
	a := &Event{Seq: 0, Time: 1.0}
	b := &Event{Seq: 1, Time: 2.0}
	eq.Enqueue(a)
	eq.Enqueue(b)

	if !eq.Remove(a) {
		t.Fatal("Expected pending event to be removed")
	}
	if eq.Remove(a) {
		t.Error("Removing twice should be a no-op")
	}
	if got := eq.Dequeue(); got != b {
		t.Errorf("Expected remaining event b, got %+v", got)
	}
	if eq.Remove(b) {
		t.Error("Removing a dequeued event should be a no-op")
	}
}

func TestSimulationClock(t *testing.T) {
	clock := NewSimulationClock()

	if clock.CurrentTime() != 0.0 {
		t.Errorf("Expected initial time 0.0, got %.3f", clock.CurrentTime())
	}

	clock.advanceTo(5.5)
	if clock.CurrentTime() != 5.5 {
		t.Errorf("Expected time 5.5, got %.3f", clock.CurrentTime())
	}

	// The clock never moves backwards
	clock.advanceTo(2.0)
	if clock.CurrentTime() != 5.5 {
		t.Errorf("Expected time to stay at 5.5, got %.3f", clock.CurrentTime())
	}
}

func TestSchedulerRunsInTimeOrder(t *testing.T) {
	s := NewScheduler()

	var order []float64
	delays := []float64{3.0, 1.0, 2.5, 0.5, 2.0}
	for _, d := range delays {
		d := d
		if _, err := s.Schedule(d, func() { order = append(order, s.Now()) }); err != nil {
			t.Fatalf("Schedule(%v): %v", d, err)
		}
	}

	executed := s.RunUntil(10.0)
	if executed != len(delays) {
		t.Fatalf("Expected %d executed events, got %d", len(delays), executed)
	}

	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("Events out of order: %v", order)
		}
	}
	if order[0] != 0.5 || order[len(order)-1] != 3.0 {
		t.Errorf("Unexpected execution times %v", order)
	}
}

func TestSchedulerFIFOTieBreak(t *testing.T) {
	s := NewScheduler()

	var order []int
	for i := 0; i < 50; i++ {
		i := i
		if _, err := s.Schedule(1.0, func() { order = append(order, i) }); err != nil {
			t.Fatal(err)
		}
	}
	s.RunUntil(1.0)

	if len(order) != 50 {
		t.Fatalf("Expected 50 events, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("Equal-time events must run in schedule order, got %v", order)
		}
	}
}

func TestSchedulerRejectsInvalidArguments(t *testing.T) {
	s := NewScheduler()

	if _, err := s.Schedule(-0.1, func() {}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for negative delay, got %v", err)
	}
	if _, err := s.Schedule(math.NaN(), func() {}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for NaN delay, got %v", err)
	}
	if _, err := s.Schedule(1.0, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for nil action, got %v", err)
	}

	s.RunUntil(5.0)
	if _, err := s.ScheduleAt(4.0, func() {}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for past time, got %v", err)
	}
	if s.Pending() != 0 {
		t.Errorf("Rejected events must not be queued, pending=%d", s.Pending())
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()

	fired := false
	h, err := s.Schedule(1.0, func() { fired = true })
	if err != nil {
		t.Fatal(err)
	}
	if !h.Pending() {
		t.Error("Expected handle to be pending")
	}
	if !s.Cancel(h) {
		t.Error("Expected cancel of pending event to succeed")
	}
	if s.Cancel(h) {
		t.Error("Second cancel should be a no-op")
	}

	s.RunUntil(2.0)
	if fired {
		t.Error("Cancelled event must never execute")
	}

	count := 0
	h2, _ := s.Schedule(0.5, func() { count++ })
	s.RunUntil(3.0)
	if s.Cancel(h2) {
		t.Error("Cancel after firing should be a no-op")
	}
	if count != 1 {
		t.Errorf("Expected event to run once, ran %d times", count)
	}

	if s.Cancel(EventHandle{}) {
		t.Error("Cancel of zero handle should be a no-op")
	}

	stats := s.Stats()
	if stats.Cancelled != 1 || stats.Executed != 1 || stats.Scheduled != 2 {
		t.Errorf("Unexpected stats %s", stats)
	}
}

func TestSchedulerScheduleDuringDrain(t *testing.T) {
	s := NewScheduler()

	var trace []string
	s.Schedule(1.0, func() {
		trace = append(trace, "a")
		// Same time as "b" but scheduled later, so it runs after "b"
		s.Schedule(0.5, func() { trace = append(trace, "c") })
		s.Schedule(0, func() { trace = append(trace, "a2") })
	})
	s.Schedule(1.5, func() { trace = append(trace, "b") })

	s.RunUntil(10.0)

	want := []string{"a", "a2", "b", "c"}
	if len(trace) != len(want) {
		t.Fatalf("Expected %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, trace)
		}
	}
}

func TestSchedulerStopBoundary(t *testing.T) {
	s := NewScheduler()

	ran := map[float64]bool{}
	for _, at := range []float64{1.0, 2.0, 2.0000001} {
		at := at
		s.ScheduleAt(at, func() { ran[at] = true })
	}

	s.RunUntil(2.0)
	if !ran[1.0] || !ran[2.0] {
		t.Error("Events at or before stop time must run")
	}
	if ran[2.0000001] {
		t.Error("Events after stop time must not run")
	}
	if s.Now() != 2.0 {
		t.Errorf("Expected clock at stop time 2.0, got %v", s.Now())
	}
	if s.Pending() != 1 {
		t.Errorf("Expected 1 pending event, got %d", s.Pending())
	}

	// Draining stopped; scheduling is still valid and resumes on the next RunUntil
	late := false
	s.Schedule(0.5, func() { late = true })
	if late {
		t.Error("Scheduling must not execute anything by itself")
	}
	s.RunUntil(3.0)
	if !late || !ran[2.0000001] {
		t.Error("Expected remaining events to run on the next RunUntil")
	}
}

func TestSchedulerEmptyQueueIsNormalTermination(t *testing.T) {
	s := NewScheduler()
	s.Schedule(1.0, func() {})

	if n := s.RunUntil(100.0); n != 1 {
		t.Errorf("Expected 1 executed event, got %d", n)
	}
	if _, ok := s.NextEventTime(); ok {
		t.Error("Expected empty queue")
	}

	// An infinite horizon leaves the clock on the last event
	s2 := NewScheduler()
	s2.Schedule(4.0, func() {})
	s2.RunUntil(math.Inf(1))
	if s2.Now() != 4.0 {
		t.Errorf("Expected clock at 4.0, got %v", s2.Now())
	}
}

func TestSchedulerEventHook(t *testing.T) {
	s := NewScheduler()
	var seen []float64
	s.OnEventExecuted(func(now float64) { seen = append(seen, now) })

	s.Schedule(0.25, func() {})
	s.Schedule(0.75, func() {})
	s.RunUntil(1.0)

	if len(seen) != 2 || seen[0] != 0.25 || seen[1] != 0.75 {
		t.Errorf("Unexpected hook calls %v", seen)
	}
}

func BenchmarkScheduler(b *testing.B) {
	s := NewScheduler()

	for i := 0; i < 1000; i++ {
		s.Schedule(float64(i), func() {})
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s.Schedule(1000, func() {})
		s.queue.Dequeue()
	}
}
