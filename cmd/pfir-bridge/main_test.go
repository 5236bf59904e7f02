package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/pfir-bridge/internal/command"
	"github.com/sweeney/pfir-bridge/internal/mqtt"
	"github.com/sweeney/pfir-bridge/internal/pfir"
	"github.com/sweeney/pfir-bridge/internal/status"
)

// --- runLoop tests ---

// loopHarness drives a dispatcher over unbuffered channels so every send
// returns only once runLoop has taken the value.
type loopHarness struct {
	d         *dispatcher
	rec       *pfir.Recorder
	pub       *mqtt.FakeClient
	tracker   *status.Tracker
	cmds      chan pfir.Command
	refresh   chan time.Time
	heartbeat chan time.Time
	sig       chan os.Signal
	errCh     chan error
}

func newLoopHarness(t *testing.T, dedupe bool) *loopHarness {
	t.Helper()
	rec := pfir.NewRecorder()
	pub := mqtt.NewFakeClient(nil)
	pub.Connected = true
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tracker := status.NewTracker(clk, status.Config{Broker: "tcp://localhost:1883"})
	logger := zaptest.NewLogger(t).Sugar()

	return &loopHarness{
		d: &dispatcher{
			engine:     pfir.NewEngine(rec, pfir.DefaultConfig(), logger),
			publisher:  pub,
			mqttStatus: pub,
			tracker:    tracker,
			dedupe:     dedupe,
			now:        clk.Now,
			logger:     logger,
		},
		rec:       rec,
		pub:       pub,
		tracker:   tracker,
		cmds:      make(chan pfir.Command),
		refresh:   make(chan time.Time),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		errCh:     make(chan error, 1),
	}
}

func (h *loopHarness) start() {
	go func() {
		h.errCh <- h.d.runLoop(h.cmds, h.refresh, h.heartbeat, h.sig)
	}()
}

// stop delivers s and waits for runLoop to return. Fakes are safe to
// inspect afterwards.
func (h *loopHarness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	if err := <-h.errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopAppliesCommand(t *testing.T) {
	h := newLoopHarness(t, true)
	h.start()

	cmd := pfir.Command{Channel: 1, Port: pfir.PortA, Value: 7}
	h.cmds <- cmd
	h.stop(t, syscall.SIGTERM)

	want := pfir.ComboFrame(1, 7, 0)
	if diff := cmp.Diff([]pfir.Frame{want, want, want}, h.rec.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	if len(h.pub.StateEvents) != 1 {
		t.Fatalf("expected 1 state event, got %d", len(h.pub.StateEvents))
	}
	se := h.pub.StateEvents[0]
	if se.Channel != 1 || se.State.A != 7 || se.Command != cmd {
		t.Errorf("unexpected state event: %+v", se)
	}

	snap := h.tracker.Snapshot()
	if snap.Channels[0].A != 7 {
		t.Errorf("tracker channel 1 A: got %d, want 7", snap.Channels[0].A)
	}
	wantCounts := status.Counts{Received: 1, Applied: 1, Frames: 3}
	if snap.Counts != wantCounts {
		t.Errorf("counts: got %+v, want %+v", snap.Counts, wantCounts)
	}
	if snap.LastCommand != cmd.String() {
		t.Errorf("LastCommand: got %q", snap.LastCommand)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true from connection status")
	}
}

func TestRunLoopSingleModeTogglesAcrossCommands(t *testing.T) {
	h := newLoopHarness(t, false)
	h.d.engine = pfir.NewEngine(h.rec, pfir.Config{Repeats: 1}, nil)
	h.start()

	cmd := pfir.Command{Channel: 2, Port: pfir.PortB, Value: 3, Mode: pfir.ModeSingleLatched}
	h.cmds <- cmd
	h.cmds <- cmd
	h.stop(t, syscall.SIGTERM)

	want := []pfir.Frame{
		pfir.SingleFrame(2, 0, pfir.PortB, 3),
		pfir.SingleFrame(2, 1, pfir.PortB, 3),
	}
	if diff := cmp.Diff(want, h.rec.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestRunLoopDropsDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		dedupe     bool
		wantFrames int
		wantDups   uint64
	}{
		{"dedupe on", true, 3, 1},
		{"dedupe off", false, 6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLoopHarness(t, tt.dedupe)
			h.start()

			cmd := pfir.Command{Channel: 3, Port: pfir.PortB, Value: 9}
			h.cmds <- cmd
			h.cmds <- cmd
			h.stop(t, syscall.SIGTERM)

			if got := len(h.rec.Frames()); got != tt.wantFrames {
				t.Errorf("frames: got %d, want %d", got, tt.wantFrames)
			}
			counts := h.tracker.Snapshot().Counts
			if counts.Received != 2 {
				t.Errorf("Received: got %d, want 2", counts.Received)
			}
			if counts.Duplicates != tt.wantDups {
				t.Errorf("Duplicates: got %d, want %d", counts.Duplicates, tt.wantDups)
			}
		})
	}
}

func TestRunLoopDedupeOnlyComparesPrevious(t *testing.T) {
	h := newLoopHarness(t, true)
	h.start()

	a := pfir.Command{Channel: 1, Port: pfir.PortA, Value: 2}
	b := pfir.Command{Channel: 1, Port: pfir.PortA, Value: 3}
	h.cmds <- a
	h.cmds <- b
	h.cmds <- a
	h.stop(t, syscall.SIGTERM)

	if got := len(h.pub.StateEvents); got != 3 {
		t.Errorf("state events: got %d, want 3", got)
	}
}

func TestRunLoopRejectsInvalidCommand(t *testing.T) {
	h := newLoopHarness(t, true)
	h.start()

	h.cmds <- pfir.Command{Channel: 0, Port: pfir.PortA, Value: 3}
	h.stop(t, syscall.SIGTERM)

	if len(h.rec.Log) != 0 {
		t.Errorf("expected nothing transmitted, got %v", h.rec.Log)
	}
	if len(h.pub.StateEvents) != 0 {
		t.Errorf("expected no state events, got %d", len(h.pub.StateEvents))
	}
	counts := h.tracker.Snapshot().Counts
	if counts.Rejected != 1 || counts.Applied != 0 {
		t.Errorf("counts: got %+v", counts)
	}
}

func TestRunLoopTransmitErrorKeepsCache(t *testing.T) {
	h := newLoopHarness(t, true)
	h.rec.SymbolError = errors.New("line busy")
	h.start()

	h.cmds <- pfir.Command{Channel: 4, Port: pfir.PortA, Value: 5}
	h.stop(t, syscall.SIGTERM)

	if h.d.engine.CachedA(4) != 5 {
		t.Errorf("expected cached A=5 despite line error, got %d", h.d.engine.CachedA(4))
	}
	if len(h.pub.StateEvents) != 1 {
		t.Errorf("expected state event after line error, got %d", len(h.pub.StateEvents))
	}
}

func TestRunLoopRefresh(t *testing.T) {
	h := newLoopHarness(t, true)
	h.start()

	h.refresh <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	want := []pfir.Frame{
		pfir.ComboFrame(1, 0, 0),
		pfir.ComboFrame(2, 0, 0),
		pfir.ComboFrame(3, 0, 0),
		pfir.ComboFrame(4, 0, 0),
	}
	if diff := cmp.Diff(want, h.rec.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if got := h.tracker.Snapshot().Counts.Refreshes; got != 1 {
		t.Errorf("Refreshes: got %d, want 1", got)
	}
}

func TestRunLoopRefreshReplaysCommandedState(t *testing.T) {
	h := newLoopHarness(t, true)
	h.start()

	h.cmds <- pfir.Command{Channel: 2, Port: pfir.PortB, Value: 12}
	h.refresh <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	frames := h.rec.Frames()
	if len(frames) != 7 {
		t.Fatalf("expected 3 apply + 4 refresh frames, got %d", len(frames))
	}
	if got, want := frames[4], pfir.ComboFrame(2, 0, 12); got != want {
		t.Errorf("refresh frame for channel 2: got %s, want %s", got, want)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newLoopHarness(t, true)
	h.start()

	h.cmds <- pfir.Command{Channel: 1, Port: pfir.PortB, Value: 1}
	h.heartbeat <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.SystemEvents) != 2 {
		t.Fatalf("expected HEARTBEAT and SHUTDOWN, got %d events", len(h.pub.SystemEvents))
	}
	hb := h.pub.SystemEvents[0]
	if hb.Event != "HEARTBEAT" {
		t.Errorf("expected HEARTBEAT, got %q", hb.Event)
	}
	if hb.Retained {
		t.Error("expected heartbeat not retained")
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &parsed); err != nil {
		t.Fatalf("invalid heartbeat JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("payload event: got %q", parsed.Status.Event)
	}
	if parsed.Status.Channels[0].B != 1 {
		t.Errorf("payload channel 1 B: got %d, want 1", parsed.Status.Channels[0].B)
	}
	if parsed.Status.Counts.Applied != 1 {
		t.Errorf("payload applied: got %d, want 1", parsed.Status.Counts.Applied)
	}
}

func TestRunLoopShutdown(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			h := newLoopHarness(t, true)
			h.start()
			h.stop(t, tt.sig)

			if len(h.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
			}
			se := h.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tt.want {
				t.Errorf("expected reason %s, got %q", tt.want, se.Reason)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}
			if !strings.Contains(string(se.RawPayload), `"reason":"`+tt.want+`"`) {
				t.Errorf("payload missing reason: %s", se.RawPayload)
			}
		})
	}
}

func TestRunLoopPublishError(t *testing.T) {
	h := newLoopHarness(t, true)
	h.pub.PublishError = errors.New("broker down")
	h.pub.PublishSystemError = errors.New("broker down")
	h.start()

	h.cmds <- pfir.Command{Channel: 1, Port: pfir.PortA, Value: 1}
	h.cmds <- pfir.Command{Channel: 1, Port: pfir.PortA, Value: 2}
	h.stop(t, syscall.SIGTERM)

	// Publishing failures never stop transmission.
	if got := len(h.rec.Frames()); got != 6 {
		t.Errorf("frames: got %d, want 6", got)
	}
}

func TestRunLoopNotHeldByStalledBroker(t *testing.T) {
	h := newLoopHarness(t, true)
	h.pub.Block = make(chan struct{})
	outbox := mqtt.NewOutbox(h.pub, 8, zaptest.NewLogger(t).Sugar())
	h.d.publisher = outbox
	h.start()

	// each send returns only once the loop is free again
	h.cmds <- pfir.Command{Channel: 1, Port: pfir.PortA, Value: 7}
	h.refresh <- time.Time{}
	h.cmds <- pfir.Command{Channel: 2, Port: pfir.PortB, Value: 3}
	h.refresh <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	if got := h.tracker.Snapshot().Counts.Refreshes; got != 2 {
		t.Errorf("Refreshes: got %d, want 2", got)
	}
	if got := len(h.rec.Frames()); got != 3+4+3+4 {
		t.Errorf("expected 14 frames while the broker stalled, got %d", got)
	}

	close(h.pub.Block)
	if err := outbox.Close(); err != nil {
		t.Fatalf("outbox close: %v", err)
	}
	if len(h.pub.StateEvents) != 2 {
		t.Errorf("expected 2 state events after the broker recovered, got %d", len(h.pub.StateEvents))
	}
	if n := len(h.pub.SystemEvents); n != 1 || h.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN to be published last, got %+v", h.pub.SystemEvents)
	}
}

func TestRunLoopWithoutTransports(t *testing.T) {
	h := newLoopHarness(t, true)
	h.d.publisher = nil
	h.d.mqttStatus = nil
	h.d.tracker = nil
	h.start()

	h.cmds <- pfir.Command{Channel: 1, Port: pfir.PortA, Value: 1}
	h.refresh <- time.Time{}
	h.heartbeat <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	if got := len(h.rec.Frames()); got != 7 {
		t.Errorf("frames: got %d, want 7", got)
	}
}

func TestPublishLifecycleStartup(t *testing.T) {
	h := newLoopHarness(t, true)

	h.d.publishLifecycle("STARTUP", "")

	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	se := h.pub.SystemEvents[0]
	if se.Event != "STARTUP" || !se.Retained {
		t.Errorf("unexpected startup event: %+v", se)
	}
	if !strings.Contains(string(se.RawPayload), `"event":"STARTUP"`) {
		t.Errorf("payload missing event: %s", se.RawPayload)
	}
}

// --- transport adapter tests ---

func TestSubmitPayload(t *testing.T) {
	q := command.NewQueue(1)
	handler := submitPayload(q, zaptest.NewLogger(t).Sugar())

	handler([]byte("garbage"))
	handler([]byte(`{"channel":2,"port":"B","power":-128}`))
	handler(command.EncodeBinary(1, pfir.PortA, 127, pfir.ModeComboSpurt)) // queue full, dropped

	if len(q.C()) != 1 {
		t.Fatalf("expected 1 queued command, got %d", len(q.C()))
	}
	got := <-q.C()
	want := pfir.Command{Channel: 2, Port: pfir.PortB, Value: pfir.ValueFloat}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// --- CLI helper tests ---

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want pfir.Command
	}{
		{"defaults", nil, pfir.Command{Channel: 1, Port: pfir.PortA}},
		{"value", []string{"-c", "3", "-o", "b", "-v", "9", "-m", "single"},
			pfir.Command{Channel: 3, Port: pfir.PortB, Value: 9, Mode: pfir.ModeSingleLatched}},
		{"power forward", []string{"--power", "127"}, pfir.Command{Channel: 1, Port: pfir.PortA, Value: 7}},
		{"power float", []string{"--power", "-128", "-v", "5"}, pfir.Command{Channel: 1, Port: pfir.PortA, Value: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cf commandFlags
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			cf.register(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}

			got, err := cf.command(fs)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandFlagsInvalid(t *testing.T) {
	var cf commandFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cf.register(fs)
	fs.Parse([]string{"-c", "5"})

	if _, err := cf.command(fs); !errors.Is(err, pfir.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFrameFor(t *testing.T) {
	tests := []struct {
		name   string
		cmd    pfir.Command
		toggle uint8
		want   pfir.Frame
	}{
		{"combo A", pfir.Command{Channel: 1, Port: pfir.PortA, Value: 7}, 0, pfir.Frame{0x4, 0x0, 0x7, 0xC}},
		{"combo B", pfir.Command{Channel: 2, Port: pfir.PortB, Value: 9}, 0, pfir.Frame{0x5, 0x9, 0x0, 0x3}},
		{"single toggled", pfir.Command{Channel: 1, Port: pfir.PortB, Value: 5, Mode: pfir.ModeSingleLatched}, 1, pfir.Frame{0x8, 0x5, 0x5, 0x7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := frameFor(tt.cmd, tt.toggle); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPrintFrame(t *testing.T) {
	var buf bytes.Buffer
	c := pfir.Command{Channel: 2, Port: pfir.PortB, Value: 9}
	if err := printFrame(&buf, c, frameFor(c, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"command: ch2/B=9 (combo)",
		"nibbles: 0101 1001 0000 0011",
		"word:    0x5903",
		"pauses:  1014 260 546 260 546",
		"1014 us\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "decoded: 0101 1001 0000 0011 (checksum ok)\n") {
		t.Errorf("expected decode check last:\n%s", out)
	}
}

func TestPrintFrameRejectsBadChecksum(t *testing.T) {
	var buf bytes.Buffer
	c := pfir.Command{Channel: 1, Port: pfir.PortA, Value: 1}
	err := printFrame(&buf, c, pfir.Frame{0x4, 0x0, 0x1, 0x0})
	if !errors.Is(err, pfir.ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
	if strings.Contains(buf.String(), "decoded:") {
		t.Errorf("bad frame reported as decoded:\n%s", buf.String())
	}
}

func TestFrameCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"frame", "--channel", "1", "--port", "B", "--value", "5", "--mode", "single", "--toggle", "1"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := Execute(); err != nil {
		t.Fatalf("frame command: %v", err)
	}
	if !strings.Contains(buf.String(), "word:    0x8557") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestLoggerConfigLevel(t *testing.T) {
	if newLoggerConfig(false).Level.Enabled(zapcore.DebugLevel) {
		t.Error("expected debug disabled by default")
	}
	if !newLoggerConfig(true).Level.Enabled(zapcore.DebugLevel) {
		t.Error("expected debug enabled with --debug")
	}
}

// stuckServer never finishes shutting down on its own.
type stuckServer struct{}

func (stuckServer) Shutdown(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestShutdownWithin(t *testing.T) {
	start := time.Now()
	err := shutdownWithin(stuckServer{}, 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("shutdown not bounded: took %v", elapsed)
	}

	if err := shutdownWithin(&http.Server{}, time.Second); err != nil {
		t.Errorf("idle server: unexpected error: %v", err)
	}
}
