package ir

import "time"

var timelineEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Step is one entry in a Timeline: either a line edge or a delay.
type Step struct {
	Edge  bool
	Level int           // level set by an edge
	Delay time.Duration // duration of a delay step
	At    time.Duration // virtual time the edge landed or the delay began
}

// Timeline is a test double implementing both Line and Delayer.
// It records every edge and delay in order against a virtual clock,
// without blocking.
type Timeline struct {
	// Steps contains all recorded edges and delays.
	Steps []Step

	// EdgeCost is virtual time consumed by every SetValue call, standing
	// in for the latency of a real line.
	EdgeCost time.Duration

	// SetError, if set, will be returned by SetValue after FailAfter
	// successful edges.
	SetError  error
	FailAfter int

	// Closed tracks if Close was called.
	Closed bool

	edges int
	now   time.Duration
}

// NewTimeline creates an empty Timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// SetValue records an edge.
func (t *Timeline) SetValue(v int) error {
	if t.SetError != nil && t.edges >= t.FailAfter {
		return t.SetError
	}
	t.edges++
	t.now += t.EdgeCost
	t.Steps = append(t.Steps, Step{Edge: true, Level: v, At: t.now})
	return nil
}

// Now returns the virtual clock.
func (t *Timeline) Now() time.Time {
	return timelineEpoch.Add(t.now)
}

// Until records a delay up to deadline and advances the virtual clock.
// Deadlines already passed record nothing.
func (t *Timeline) Until(deadline time.Time) {
	t.Delay(deadline.Sub(t.Now()))
}

// Delay records a delay of d.
func (t *Timeline) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	t.Steps = append(t.Steps, Step{Delay: d, At: t.now})
	t.now += d
}

// Elapsed returns the virtual time since the Timeline was created.
func (t *Timeline) Elapsed() time.Duration {
	return t.now
}

// Close marks the timeline as closed.
func (t *Timeline) Close() error {
	t.Closed = true
	return nil
}

// Total returns the sum of all recorded delays.
func (t *Timeline) Total() time.Duration {
	var total time.Duration
	for _, s := range t.Steps {
		total += s.Delay
	}
	return total
}

// Spaces reconstructs the idle time following each mark, as a receiver
// would measure it from edge timestamps. Idle time before the first mark
// is ignored; idle time after the last mark is reported in full.
func (t *Timeline) Spaces() []time.Duration {
	var out []time.Duration
	level, cycles := 0, 0
	var fell time.Duration
	for _, s := range t.Steps {
		switch {
		case !s.Edge:
			// delays are implied by edge timestamps
		case s.Level == 1 && level == 0:
			if cycles == MarkCycles {
				out = append(out, s.At-fell-HalfPeriod)
				cycles = 0
			}
			cycles++
			level = 1
		case s.Level == 0 && level == 1:
			level = 0
			fell = s.At
		}
	}
	if cycles == MarkCycles {
		// measured to where an edge set now would land
		out = append(out, t.now+t.EdgeCost-fell-HalfPeriod)
	}
	return out
}

// Reset clears recorded steps. The virtual clock keeps running.
func (t *Timeline) Reset() {
	t.Steps = nil
	t.Closed = false
	t.SetError = nil
	t.FailAfter = 0
	t.edges = 0
}
