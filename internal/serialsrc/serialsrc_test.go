package serialsrc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/pfir-bridge/internal/command"
	"github.com/sweeney/pfir-bridge/internal/pfir"
)

type recordingSink struct {
	cmds []pfir.Command
	err  error
}

func (r *recordingSink) Submit(cmd pfir.Command) error {
	if r.err != nil {
		return r.err
	}
	r.cmds = append(r.cmds, cmd)
	return nil
}

func newSource(t *testing.T, data []byte, sink command.Sink) *Source {
	t.Helper()
	return NewSource(io.NopCloser(bytes.NewReader(data)), sink, zaptest.NewLogger(t).Sugar())
}

func stream(records ...[]byte) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

func TestRunDecodesRecords(t *testing.T) {
	sink := &recordingSink{}
	data := stream(
		command.EncodeBinary(1, pfir.PortA, 127, pfir.ModeComboSpurt),
		command.EncodeBinary(4, pfir.PortB, command.PowerFloat, pfir.ModeSingleLatched),
	)

	if err := newSource(t, data, sink).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []pfir.Command{
		{Channel: 1, Port: pfir.PortA, Value: command.PowerToValue(127), Mode: pfir.ModeComboSpurt},
		{Channel: 4, Port: pfir.PortB, Value: pfir.ValueFloat, Mode: pfir.ModeSingleLatched},
	}
	if diff := cmp.Diff(want, sink.cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRunResyncsAfterGarbage(t *testing.T) {
	sink := &recordingSink{}
	data := stream(
		[]byte{0xFF, 0xFF},
		command.EncodeBinary(2, pfir.PortB, 0, pfir.ModeComboSpurt),
	)

	if err := newSource(t, data, sink).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.cmds) != 1 {
		t.Fatalf("expected 1 command after resync, got %d: %v", len(sink.cmds), sink.cmds)
	}
	if sink.cmds[0].Channel != 2 || sink.cmds[0].Port != pfir.PortB {
		t.Errorf("unexpected command: %v", sink.cmds[0])
	}
}

func TestRunIgnoresTrailingPartialRecord(t *testing.T) {
	sink := &recordingSink{}
	data := stream(
		command.EncodeBinary(3, pfir.PortA, 64, pfir.ModeComboSpurt),
		[]byte{3, 0},
	)

	if err := newSource(t, data, sink).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.cmds) != 1 {
		t.Errorf("expected 1 command, got %d", len(sink.cmds))
	}
}

func TestRunContinuesWhenSinkRejects(t *testing.T) {
	sink := &recordingSink{err: command.ErrQueueFull}
	data := stream(
		command.EncodeBinary(1, pfir.PortA, 0, pfir.ModeComboSpurt),
		command.EncodeBinary(1, pfir.PortB, 0, pfir.ModeComboSpurt),
	)

	if err := newSource(t, data, sink).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }
func (f failingReader) Close() error             { return nil }

func TestRunReturnsReadError(t *testing.T) {
	readErr := errors.New("device unplugged")
	src := NewSource(failingReader{err: readErr}, &recordingSink{}, nil)

	err := src.Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewSource(pr, &recordingSink{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil on cancel, got %v", err)
	}
}
