// Package ir emits Power Functions infrared symbols on a digital output line.
// The real line uses the Linux GPIO character device.
// The fakes record edges and delays so bit patterns can be checked without hardware.
package ir

import "time"

// Line is a single digital output driving the IR LED.
type Line interface {
	// SetValue drives the line high (1) or low (0).
	SetValue(v int) error

	// Close releases the line.
	Close() error
}

// Delayer is the clock a Signal times edges against.
// Until must return within a few microseconds of deadline; the receiver
// discriminates symbols by pause length.
type Delayer interface {
	Now() time.Time

	// Until blocks until deadline. A deadline in the past returns at once.
	Until(deadline time.Time)
}

// Carrier timing. One cycle is a high half-period followed by a low one.
const (
	HalfPeriod = 13 * time.Microsecond // ~38 kHz carrier
	Cycle      = 2 * HalfPeriod

	MarkCycles           = 6
	PauseZeroCycles      = 10
	PauseOneCycles       = 21
	PauseStartStopCycles = 39
)

// Pause lengths following a mark.
const (
	PauseZero      = PauseZeroCycles * Cycle
	PauseOne       = PauseOneCycles * Cycle
	PauseStartStop = PauseStartStopCycles * Cycle
)

// Defaults for a Raspberry Pi with the IR LED on BCM 18.
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 18
)
