package ringbuf

import "testing"

func TestRejectModeRefusesWhenFull(t *testing.T) {
	b := New[byte](3)
	for i := byte(0); i < 3; i++ {
		if !b.Put(i) {
			t.Fatalf("Put(%d) = false before the buffer was full", i)
		}
	}
	if b.Put(9) {
		t.Error("Put() = true on a full reject-mode buffer")
	}
	if b.Ready() != 3 {
		t.Errorf("Ready() = %d, want 3", b.Ready())
	}

	for want := byte(0); want < 3; want++ {
		got, ok := b.Get()
		if !ok || got != want {
			t.Errorf("Get() = %d, %v, want %d, true", got, ok, want)
		}
	}
	if _, ok := b.Get(); ok {
		t.Error("Get() on empty buffer returned ok")
	}
}

func TestOverwriteModeDropsOldest(t *testing.T) {
	b := NewOverwrite[uint8](20)
	for i := 0; i <= 20; i++ {
		b.Put(uint8(i))
		if b.Ready() > b.Cap() {
			t.Fatalf("Ready() = %d exceeds Cap() = %d", b.Ready(), b.Cap())
		}
	}

	if b.Ready() != 20 {
		t.Errorf("Ready() = %d, want 20", b.Ready())
	}
	oldest, _ := b.Get()
	if oldest != 1 {
		t.Errorf("oldest = %d, want 1 (entry 0 overwritten)", oldest)
	}
}

func TestLastIndexesNewestFirst(t *testing.T) {
	b := NewOverwrite[int](4)
	for i := 1; i <= 6; i++ {
		b.Put(i)
	}

	tests := []struct {
		i    int
		want int
		ok   bool
	}{
		{0, 6, true},
		{1, 5, true},
		{3, 3, true},
		{4, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := b.Last(tt.i)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Last(%d) = %d, %v, want %d, %v", tt.i, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEachAndReset(t *testing.T) {
	b := New[int](5)
	b.Put(1)
	b.Put(2)
	b.Put(3)

	sum := 0
	b.Each(func(v int) { sum += v })
	if sum != 6 {
		t.Errorf("sum = %d, want 6", sum)
	}

	b.Reset()
	if b.Ready() != 0 {
		t.Errorf("Ready() after Reset = %d, want 0", b.Ready())
	}
	if _, ok := b.Last(0); ok {
		t.Error("Last(0) after Reset returned ok")
	}
}
