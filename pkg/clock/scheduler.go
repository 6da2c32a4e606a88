package clock

import "sort"

// Handle identifies a scheduled callback. The zero Handle is never issued.
type Handle uint32

type entry struct {
	id  Handle
	at  uint32
	seq uint32
	fn  func()
}

// Scheduler is a polled software timer wheel. It replaces compare-match
// interrupts: callers ask for a callback after a delay and the owning loop
// calls Poll every tick.
type Scheduler struct {
	src     Source
	entries []entry
	nextID  Handle
	seq     uint32
}

// NewScheduler creates a Scheduler that measures delays against src
func NewScheduler(src Source) *Scheduler {
	return &Scheduler{src: src}
}

// After schedules fn to run on the first Poll at or after now+ms
func (s *Scheduler) After(ms uint32, fn func()) Handle {
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	s.seq++
	s.entries = append(s.entries, entry{
		id:  s.nextID,
		at:  s.src.Millis() + ms,
		seq: s.seq,
		fn:  fn,
	})
	return s.nextID
}

// Cancel removes a pending callback. It reports whether h was still pending.
func (s *Scheduler) Cancel(h Handle) bool {
	if h == 0 {
		return false
	}
	for i := range s.entries {
		if s.entries[i].id == h {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of callbacks not yet run
func (s *Scheduler) Pending() int {
	return len(s.entries)
}

// Poll runs every callback whose deadline has passed, earliest first.
// Callbacks may schedule further callbacks; those run on a later Poll.
func (s *Scheduler) Poll(now uint32) int {
	var due []entry
	kept := s.entries[:0]
	for _, e := range s.entries {
		if int32(now-e.at) >= 0 {
			due = append(due, e)
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	if len(due) == 0 {
		return 0
	}

	sort.Slice(due, func(i, j int) bool {
		di := int32(due[i].at - now)
		dj := int32(due[j].at - now)
		if di != dj {
			return di < dj
		}
		return due[i].seq < due[j].seq
	})
	for _, e := range due {
		e.fn()
	}
	return len(due)
}
