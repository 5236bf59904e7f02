package mqtt

// outgoing is one bridge event waiting for a broker connection. Exactly one
// of state and system is set. Payloads are formatted when the event is sent.
type outgoing struct {
	state  *StateEvent
	system *SystemEvent
}

func stateOut(e StateEvent) outgoing   { return outgoing{state: &e} }
func systemOut(e SystemEvent) outgoing { return outgoing{system: &e} }

// eventBuffer holds events published while disconnected, oldest first.
// State for a channel is retained by the broker, so only the newest state
// event per channel is kept. Not safe for concurrent use.
type eventBuffer struct {
	events   []outgoing
	capacity int
	overflow bool // an event was dropped since the last drain
}

func newEventBuffer(capacity int) *eventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &eventBuffer{capacity: capacity}
}

// push queues e. A state event supersedes any queued state for the same
// channel. When full the oldest event is dropped; push reports true only
// for the first drop since the last drain, so callers log once.
func (b *eventBuffer) push(e outgoing) bool {
	if e.state != nil {
		for i, q := range b.events {
			if q.state != nil && q.state.Channel == e.state.Channel {
				b.events = append(b.events[:i], b.events[i+1:]...)
				break
			}
		}
	}

	dropped := false
	if len(b.events) == b.capacity {
		dropped = !b.overflow
		b.overflow = true
		b.events = append(b.events[:0], b.events[1:]...)
	}
	b.events = append(b.events, e)
	return dropped
}

func (b *eventBuffer) drainAll() []outgoing {
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	b.overflow = false
	return out
}

// states counts queued state events.
func (b *eventBuffer) states() int {
	n := 0
	for _, e := range b.events {
		if e.state != nil {
			n++
		}
	}
	return n
}

func (b *eventBuffer) len() int {
	return len(b.events)
}
