package mqtt

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// DefaultOutboxSize is how many events an Outbox queues for its publisher.
const DefaultOutboxSize = 32

var (
	// ErrOutboxFull is returned when an event is published faster than the
	// broker accepts them.
	ErrOutboxFull = errors.New("mqtt outbox full")

	// ErrOutboxClosed is returned for events published after Close.
	ErrOutboxClosed = errors.New("mqtt outbox closed")
)

// Outbox is a Publisher that hands events to another Publisher on its own
// goroutine, so callers never wait on the broker. Events are published in
// the order they were queued.
type Outbox struct {
	pub    Publisher
	logger *zap.SugaredLogger
	events chan outgoing
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewOutbox starts an Outbox queueing up to size events for pub.
func NewOutbox(pub Publisher, size int, logger *zap.SugaredLogger) *Outbox {
	if size < 1 {
		size = DefaultOutboxSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	o := &Outbox{
		pub:    pub,
		logger: logger,
		events: make(chan outgoing, size),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	for e := range o.events {
		switch {
		case e.state != nil:
			if err := o.pub.PublishState(*e.state); err != nil {
				o.logger.Warnw("state publish error", "channel", e.state.Channel, "error", err)
			}
		case e.system != nil:
			if err := o.pub.PublishSystem(*e.system); err != nil {
				o.logger.Warnw("system publish error", "event", e.system.Event, "error", err)
			} else {
				o.logger.Infow("published system event", "event", e.system.Event)
			}
		}
	}
}

// PublishState queues a channel state event.
func (o *Outbox) PublishState(event StateEvent) error {
	return o.enqueue(stateOut(event))
}

// PublishSystem queues a system lifecycle event.
func (o *Outbox) PublishSystem(event SystemEvent) error {
	return o.enqueue(systemOut(event))
}

func (o *Outbox) enqueue(e outgoing) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.events <- e:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close publishes every queued event, then closes the underlying publisher.
func (o *Outbox) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.events)
	o.mu.Unlock()

	<-o.done
	return o.pub.Close()
}
