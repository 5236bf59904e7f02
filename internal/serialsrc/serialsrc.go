// Package serialsrc reads fixed-size binary commands from a serial port and
// submits them to the dispatch loop.
package serialsrc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/sweeney/pfir-bridge/internal/command"
)

// DefaultBaud is the baud rate used when none is configured.
const DefaultBaud = 115200

// Source decodes 4-byte command records from a byte stream.
type Source struct {
	rc     io.ReadCloser
	sink   command.Sink
	logger *zap.SugaredLogger
}

// Open opens the named serial port (8N1) and wraps it in a Source.
func Open(name string, baud int, sink command.Sink, logger *zap.SugaredLogger) (*Source, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}

	return NewSource(port, sink, logger), nil
}

// NewSource creates a Source reading from rc.
func NewSource(rc io.ReadCloser, sink command.Sink, logger *zap.SugaredLogger) *Source {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Source{rc: rc, sink: sink, logger: logger}
}

// Run reads records until the stream ends or ctx is cancelled.
// A record that fails to decode is resynchronised by discarding its first
// byte. A clean end of stream returns nil.
func (s *Source) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.rc.Close() })
	defer stop()

	r := bufio.NewReader(s.rc)
	for {
		rec, err := r.Peek(command.WireSize)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read serial: %w", err)
		}

		cmd, err := command.DecodeBinary(rec)
		if err != nil {
			s.logger.Debugw("serial resync", "byte", rec[0], "error", err)
			r.Discard(1)
			continue
		}
		r.Discard(command.WireSize)

		if err := s.sink.Submit(cmd); err != nil {
			s.logger.Warnw("serial command dropped", "command", cmd.String(), "error", err)
		}
	}
}

// Close closes the underlying stream.
func (s *Source) Close() error {
	return s.rc.Close()
}
