package pfir

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Signal emits symbols and idle gaps on the IR line.
// *ir.Signal is the hardware implementation; Recorder is the test double.
type Signal interface {
	SymbolSender
	Gap(d time.Duration)
}

// Config holds the empirically tuned transmission parameters.
type Config struct {
	// Repeats is how many times Apply sends a command's frame.
	Repeats int
	// RepeatDelay follows every frame sent by Apply.
	RepeatDelay time.Duration
	// PortGap separates the A and B frames of a single output replay.
	PortGap time.Duration
	// InterChannelDelay follows each channel during RefreshAll.
	InterChannelDelay time.Duration
}

// DefaultConfig returns the parameters tuned for the stock PF receiver.
func DefaultConfig() Config {
	return Config{
		Repeats:           3,
		RepeatDelay:       30 * time.Millisecond,
		PortGap:           5 * time.Millisecond,
		InterChannelDelay: 5 * time.Millisecond,
	}
}

// Stats counts engine activity since construction.
type Stats struct {
	Frames    uint64
	Applied   uint64
	Rejected  uint64
	Refreshes uint64
}

// Engine applies commands to the channel cache and transmits the frames
// they imply. The link is one-way: a nil error means the bits went out on
// the line, never that a receiver decoded them. Repetition is the only
// reliability mechanism.
type Engine struct {
	cfg    Config
	signal Signal
	store  *Store
	stats  Stats
	logger *zap.SugaredLogger
}

// NewEngine creates an Engine with every channel floating in combo mode.
// A nil logger discards engine logs.
func NewEngine(signal Signal, cfg Config, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		cfg:    cfg,
		signal: signal,
		store:  NewStore(),
		logger: logger,
	}
}

// Config returns the engine's transmission parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Apply is ApplyRepeated with the configured repeat count and delay.
func (e *Engine) Apply(cmd Command) error {
	return e.ApplyRepeated(cmd, e.cfg.Repeats, e.cfg.RepeatDelay)
}

// ApplyRepeated validates cmd, caches it, and sends the frame implied by
// its mode repeats times with delay after each send. Combo frames carry
// both cached outputs; single output frames carry only cmd's port.
// An invalid command returns ErrInvalidArgument with nothing cached or sent.
func (e *Engine) ApplyRepeated(cmd Command, repeats int, delay time.Duration) error {
	if err := e.store.Set(cmd); err != nil {
		e.stats.Rejected++
		return err
	}
	e.stats.Applied++
	e.logger.Debugw("apply", "command", cmd.String(), "repeats", repeats)

	for i := 0; i < repeats; i++ {
		if err := e.transmit(cmd.Channel, cmd.Mode, cmd.Port); err != nil {
			return fmt.Errorf("apply %s: %w", cmd, err)
		}
		e.signal.Gap(delay)
	}
	return nil
}

// SendChannel is SendChannelRepeated with one send and no delay.
func (e *Engine) SendChannel(channel uint8) error {
	return e.SendChannelRepeated(channel, 1, 0)
}

// SendChannelRepeated replays channel's cached state without changing it.
// In single output mode both ports are sent, A then B, so a periodic
// refresh keeps both outputs alive on receivers that use both.
func (e *Engine) SendChannelRepeated(channel uint8, repeats int, delay time.Duration) error {
	st, ok := e.store.Get(channel)
	if !ok {
		e.stats.Rejected++
		return fmt.Errorf("%w: channel %d", ErrInvalidArgument, channel)
	}

	for i := 0; i < repeats; i++ {
		switch st.Mode {
		case ModeComboSpurt:
			if err := e.transmit(channel, ModeComboSpurt, PortA); err != nil {
				return fmt.Errorf("send channel %d: %w", channel, err)
			}
		case ModeSingleLatched:
			if err := e.transmit(channel, ModeSingleLatched, PortA); err != nil {
				return fmt.Errorf("send channel %d port A: %w", channel, err)
			}
			e.signal.Gap(e.cfg.PortGap)
			if err := e.transmit(channel, ModeSingleLatched, PortB); err != nil {
				return fmt.Errorf("send channel %d port B: %w", channel, err)
			}
		default:
			return fmt.Errorf("%w: channel %d has mode %d", ErrInvalidArgument, channel, uint8(st.Mode))
		}
		e.signal.Gap(delay)
	}
	return nil
}

// RefreshAll is RefreshAllWithGap with the configured inter-channel delay.
func (e *Engine) RefreshAll() error {
	return e.RefreshAllWithGap(e.cfg.InterChannelDelay)
}

// RefreshAllWithGap replays channels 1 through 4 in order with gap after
// each. A failing channel does not stop the others; the errors are combined.
func (e *Engine) RefreshAllWithGap(gap time.Duration) error {
	var err error
	for ch := uint8(MinChannel); ch <= MaxChannel; ch++ {
		if sendErr := e.SendChannel(ch); sendErr != nil {
			err = multierr.Append(err, sendErr)
		}
		e.signal.Gap(gap)
	}
	e.stats.Refreshes++
	return err
}

// CachedA returns channel's cached output A value, or 0 if out of range.
func (e *Engine) CachedA(channel uint8) uint8 {
	return e.store.A(channel)
}

// CachedB returns channel's cached output B value, or 0 if out of range.
func (e *Engine) CachedB(channel uint8) uint8 {
	return e.store.B(channel)
}

// CachedMode returns channel's cached mode, or ModeComboSpurt if out of range.
func (e *Engine) CachedMode(channel uint8) Mode {
	return e.store.Mode(channel)
}

// SetCached updates the cache without transmitting. Pair with
// SendChannel or RefreshAll to batch several updates into one send.
func (e *Engine) SetCached(cmd Command) error {
	if err := e.store.Set(cmd); err != nil {
		e.stats.Rejected++
		return err
	}
	return nil
}

// Channels returns a copy of every channel's cached state.
func (e *Engine) Channels() [NumChannels]ChannelState {
	return e.store.Snapshot()
}

// Stats returns the engine's activity counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// transmit builds and sends one frame for a valid channel. Single output
// frames consume the channel's toggle bit whether or not the send succeeds.
func (e *Engine) transmit(channel uint8, mode Mode, port Port) error {
	var f Frame
	switch mode {
	case ModeComboSpurt:
		f = ComboFrame(channel, e.store.A(channel), e.store.B(channel))
	case ModeSingleLatched:
		f = SingleFrame(channel, e.store.NextToggle(channel), port, e.store.value(channel, port))
	default:
		return fmt.Errorf("%w: mode %d", ErrInvalidArgument, uint8(mode))
	}

	if err := f.Encode(e.signal); err != nil {
		return err
	}
	e.stats.Frames++
	e.logger.Debugw("frame sent", "channel", channel, "mode", mode.String(), "frame", f.String())
	return nil
}
