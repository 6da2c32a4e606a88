package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/james-see/dfam2cv/pkg/event"
)

func TestPlayOrderAndTiming(t *testing.T) {
	events := []Timed{
		{At: 0, Event: event.NewNoteOn(1, 60, 100)},
		{At: 10, Event: event.Event{Kind: event.Clock}},
		{At: 20, Event: event.NewNoteOff(1, 60, 0)},
	}
	var got []event.Kind
	start := time.Now()
	n, err := Play(context.Background(), events, func(ev event.Event) bool {
		got = append(got, ev.Kind)
		return ev.Kind != event.Clock
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("queued = %d, want 2", n)
	}
	want := []event.Kind{event.NoteOn, event.Clock, event.NoteOff}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("played in %v, want at least 20ms", elapsed)
	}
}

func TestPlayCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := []Timed{
		{At: 0, Event: event.NewNoteOn(1, 60, 100)},
		{At: 60000, Event: event.NewNoteOff(1, 60, 0)},
	}
	n, err := Play(ctx, events, func(event.Event) bool {
		cancel()
		return true
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n != 1 {
		t.Errorf("queued = %d, want 1", n)
	}
}
