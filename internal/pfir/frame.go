package pfir

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/pfir-bridge/internal/ir"
)

// Frame is one protocol message: three data nibbles followed by the LRC
// checksum nibble. On the wire it is bracketed by start and stop symbols
// and each nibble is sent MSB first.
type Frame [4]uint8

// FrameSymbols is the number of symbols in an encoded frame.
const FrameSymbols = 1 + 16 + 1

// ErrBadFrame is returned when symbols cannot be decoded into a frame.
var ErrBadFrame = errors.New("bad frame")

// SymbolSender emits one mark followed by the given pause.
type SymbolSender interface {
	Symbol(pause time.Duration) error
}

// Checksum is the LRC over the first three nibbles.
func Checksum(n1, n2, n3 uint8) uint8 {
	return (0xF ^ n1 ^ n2 ^ n3) & 0xF
}

func newFrame(n1, n2, n3 uint8) Frame {
	n1, n2, n3 = n1&0xF, n2&0xF, n3&0xF
	return Frame{n1, n2, n3, Checksum(n1, n2, n3)}
}

// ComboFrame builds a combo PWM frame: [a 1 C C] [B] [A] [L].
func ComboFrame(channel, a, b uint8) Frame {
	const address = 0
	n1 := address<<3 | 1<<2 | (channel-1)&0x3
	return newFrame(n1, b, a)
}

// SingleFrame builds a single output PWM frame: [T 0 C C] [a 1 M O] [D] [L].
func SingleFrame(channel, toggle uint8, port Port, pwm uint8) Frame {
	const (
		address = 0
		pwmMode = 0
	)
	n1 := (toggle&1)<<3 | 0<<2 | (channel-1)&0x3
	n2 := address<<3 | 1<<2 | pwmMode<<1 | uint8(port)&1
	return newFrame(n1, n2, pwm)
}

// Valid reports whether the checksum nibble matches the data nibbles.
func (f Frame) Valid() bool {
	return f[3] == Checksum(f[0], f[1], f[2])
}

// Channel returns the 1-based channel addressed by the frame.
func (f Frame) Channel() uint8 {
	return f[0]&0x3 + 1
}

// Toggle returns the toggle bit of a single output frame.
func (f Frame) Toggle() uint8 {
	return f[0] >> 3 & 1
}

// IsCombo reports whether the frame is a combo PWM frame.
func (f Frame) IsCombo() bool {
	return f[0]&0x4 != 0
}

// Bits returns the frame as a 16-bit word, N1 in the high nibble.
func (f Frame) Bits() uint16 {
	return uint16(f[0]&0xF)<<12 | uint16(f[1]&0xF)<<8 | uint16(f[2]&0xF)<<4 | uint16(f[3]&0xF)
}

func (f Frame) String() string {
	return fmt.Sprintf("%04b %04b %04b %04b", f[0], f[1], f[2], f[3])
}

// Pauses returns the pause after each mark, start to stop.
func (f Frame) Pauses() []time.Duration {
	out := make([]time.Duration, 0, FrameSymbols)
	out = append(out, ir.PauseStartStop)
	for _, n := range f {
		for bit := 3; bit >= 0; bit-- {
			if n>>bit&1 == 1 {
				out = append(out, ir.PauseOne)
			} else {
				out = append(out, ir.PauseZero)
			}
		}
	}
	return append(out, ir.PauseStartStop)
}

// Encode emits the frame through s.
func (f Frame) Encode(s SymbolSender) error {
	for _, p := range f.Pauses() {
		if err := s.Symbol(p); err != nil {
			return fmt.Errorf("encode frame %s: %w", f, err)
		}
	}
	return nil
}

type symbol int

const (
	symZero symbol = iota
	symOne
	symStartStop
)

// classify sorts a measured pause by the midpoints between nominal lengths.
// Pauses longer than start/stop are treated as start/stop, so idle gaps
// after a stop symbol decode cleanly.
func classify(p time.Duration) symbol {
	switch {
	case p >= (ir.PauseOne+ir.PauseStartStop)/2:
		return symStartStop
	case p >= (ir.PauseZero+ir.PauseOne)/2:
		return symOne
	}
	return symZero
}

// DecodePauses turns a sequence of measured pauses back into frames.
func DecodePauses(pauses []time.Duration) ([]Frame, error) {
	var frames []Frame
	i := 0
	for i < len(pauses) {
		if classify(pauses[i]) != symStartStop {
			return frames, fmt.Errorf("%w: symbol %d: expected start", ErrBadFrame, i)
		}
		if i+FrameSymbols > len(pauses) {
			return frames, fmt.Errorf("%w: truncated at symbol %d", ErrBadFrame, i)
		}
		var f Frame
		for b := 0; b < 16; b++ {
			switch classify(pauses[i+1+b]) {
			case symOne:
				f[b/4] |= 1 << (3 - b%4)
			case symStartStop:
				return frames, fmt.Errorf("%w: symbol %d: unexpected start/stop", ErrBadFrame, i+1+b)
			}
		}
		if classify(pauses[i+FrameSymbols-1]) != symStartStop {
			return frames, fmt.Errorf("%w: symbol %d: expected stop", ErrBadFrame, i+FrameSymbols-1)
		}
		if !f.Valid() {
			return frames, fmt.Errorf("%w: checksum mismatch in %s", ErrBadFrame, f)
		}
		frames = append(frames, f)
		i += FrameSymbols
	}
	return frames, nil
}
