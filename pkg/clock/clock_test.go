package clock

import (
	"math"
	"testing"
)

func TestCounterTick(t *testing.T) {
	c := NewCounter(0)
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	if c.Millis() != 5 {
		t.Errorf("Millis() = %d, want 5", c.Millis())
	}
	c.Advance(10)
	if c.Millis() != 15 {
		t.Errorf("Millis() = %d, want 15", c.Millis())
	}
}

func TestSinceAcrossWrap(t *testing.T) {
	then := uint32(math.MaxUint32 - 2)
	c := NewCounter(then)
	c.Advance(5)
	if got := Since(c.Millis(), then); got != 5 {
		t.Errorf("Since() = %d, want 5", got)
	}
}

func TestSchedulerRunsDueCallbacksInOrder(t *testing.T) {
	c := NewCounter(100)
	s := NewScheduler(c)

	var order []string
	s.After(5, func() { order = append(order, "late") })
	s.After(2, func() { order = append(order, "early") })
	s.After(2, func() { order = append(order, "early2") })

	if n := s.Poll(c.Millis()); n != 0 {
		t.Fatalf("Poll() ran %d callbacks before any deadline", n)
	}

	c.Advance(2)
	if n := s.Poll(c.Millis()); n != 2 {
		t.Fatalf("Poll() ran %d callbacks, want 2", n)
	}
	c.Advance(10)
	s.Poll(c.Millis())

	want := []string{"early", "early2", "late"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestSchedulerCancel(t *testing.T) {
	c := NewCounter(0)
	s := NewScheduler(c)

	fired := false
	h := s.After(1, func() { fired = true })
	if !s.Cancel(h) {
		t.Fatal("Cancel() = false for a pending handle")
	}
	if s.Cancel(h) {
		t.Error("Cancel() = true for an already cancelled handle")
	}
	c.Advance(3)
	s.Poll(c.Millis())
	if fired {
		t.Error("cancelled callback ran")
	}
}

func TestSchedulerDeadlineAcrossWrap(t *testing.T) {
	c := NewCounter(math.MaxUint32)
	s := NewScheduler(c)

	fired := false
	s.After(2, func() { fired = true })
	c.Tick() // wraps to 0
	s.Poll(c.Millis())
	if fired {
		t.Fatal("callback ran one tick early")
	}
	c.Tick()
	s.Poll(c.Millis())
	if !fired {
		t.Error("callback did not run after the wrap")
	}
}
