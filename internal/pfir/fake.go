package pfir

import (
	"fmt"
	"time"
)

// Entry is one item in a Recorder log: a complete frame or an idle gap.
type Entry struct {
	Frame Frame
	Gap   time.Duration // non-zero for gap entries
}

// IsGap reports whether the entry is an idle gap.
func (e Entry) IsGap() bool {
	return e.Gap > 0
}

// Recorder is a Signal test double. It collects symbols without blocking,
// decodes every complete frame, and logs frames and gaps in order.
type Recorder struct {
	// Log contains decoded frames and gaps in transmission order.
	Log []Entry

	// Pauses contains every symbol pause received.
	Pauses []time.Duration

	// SymbolError, if set, will be returned by Symbol.
	SymbolError error

	pending []time.Duration
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Symbol records a symbol and completes a frame after FrameSymbols symbols.
func (r *Recorder) Symbol(pause time.Duration) error {
	if r.SymbolError != nil {
		return r.SymbolError
	}
	r.Pauses = append(r.Pauses, pause)
	r.pending = append(r.pending, pause)
	if len(r.pending) < FrameSymbols {
		return nil
	}

	frames, err := DecodePauses(r.pending)
	r.pending = r.pending[:0]
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	for _, f := range frames {
		r.Log = append(r.Log, Entry{Frame: f})
	}
	return nil
}

// Gap records an idle gap. Non-positive gaps are ignored, matching the
// hardware signal.
func (r *Recorder) Gap(d time.Duration) {
	if d <= 0 {
		return
	}
	r.Log = append(r.Log, Entry{Gap: d})
}

// Frames returns the decoded frames in order.
func (r *Recorder) Frames() []Frame {
	var out []Frame
	for _, e := range r.Log {
		if !e.IsGap() {
			out = append(out, e.Frame)
		}
	}
	return out
}

// Reset clears everything recorded.
func (r *Recorder) Reset() {
	r.Log = nil
	r.Pauses = nil
	r.pending = nil
	r.SymbolError = nil
}
