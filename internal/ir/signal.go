package ir

import (
	"fmt"
	"time"
)

// Signal emits carrier marks and idle spaces on a Line.
// Every call blocks for the full physical duration of what it emits.
//
// Edges are scheduled against absolute deadlines, so time spent inside
// Line.SetValue does not stretch the carrier or the pauses.
type Signal struct {
	line  Line
	delay Delayer

	// next is the deadline the last mark, pause or gap ended on.
	next time.Time
}

// NewSignal creates a Signal that drives line and times with delay.
func NewSignal(line Line, delay Delayer) *Signal {
	return &Signal{line: line, delay: delay}
}

// anchor returns the time the next emission is scheduled from. Calls that
// follow on from the previous deadline continue its schedule; after an
// idle stretch the schedule restarts from now.
func (s *Signal) anchor() time.Time {
	now := s.delay.Now()
	if s.next.IsZero() || now.Before(s.next) || now.Sub(s.next) > Cycle {
		return now
	}
	return s.next
}

// Mark emits MarkCycles carrier cycles and leaves the line low.
func (s *Signal) Mark() error {
	t := s.anchor()
	for i := 0; i < MarkCycles; i++ {
		if err := s.line.SetValue(1); err != nil {
			s.next = time.Time{}
			return fmt.Errorf("mark high: %w", err)
		}
		t = t.Add(HalfPeriod)
		s.delay.Until(t)
		if err := s.line.SetValue(0); err != nil {
			s.next = time.Time{}
			return fmt.Errorf("mark low: %w", err)
		}
		t = t.Add(HalfPeriod)
		s.delay.Until(t)
	}
	s.next = t
	return nil
}

// Symbol emits a mark followed by pause of idle line.
func (s *Signal) Symbol(pause time.Duration) error {
	if err := s.Mark(); err != nil {
		return err
	}
	s.next = s.next.Add(pause)
	s.delay.Until(s.next)
	return nil
}

// Gap idles the line for d. Non-positive durations return immediately.
func (s *Signal) Gap(d time.Duration) {
	if d <= 0 {
		return
	}
	s.next = s.anchor().Add(d)
	s.delay.Until(s.next)
}
