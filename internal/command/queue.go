package command

import (
	"errors"

	"github.com/sweeney/pfir-bridge/internal/pfir"
)

// ErrQueueFull is returned by Submit when the dispatch loop is behind.
var ErrQueueFull = errors.New("command queue full")

// Sink accepts decoded commands for the dispatch loop.
type Sink interface {
	Submit(cmd pfir.Command) error
}

// Queue is a bounded Sink. Transports submit from their own goroutines;
// the dispatch loop is the only reader.
type Queue struct {
	ch chan pfir.Command
}

// NewQueue creates a Queue holding up to size pending commands.
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan pfir.Command, size)}
}

// Submit enqueues cmd without blocking.
func (q *Queue) Submit(cmd pfir.Command) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// C returns the receive side for the dispatch loop.
func (q *Queue) C() <-chan pfir.Command {
	return q.ch
}
