//go:build linux

package ir

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealLine drives an IR LED through the Linux GPIO character device.
type RealLine struct {
	line *gpiocdev.Line
}

// NewRealLine requests offset on chip as an output, initially low.
func NewRealLine(chip string, offset int) (*RealLine, error) {
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("pfir-bridge"))
	if err != nil {
		return nil, fmt.Errorf("request IR pin %d on %s: %w", offset, chip, err)
	}
	return &RealLine{line: l}, nil
}

// SetValue drives the line.
func (r *RealLine) SetValue(v int) error {
	return r.line.SetValue(v)
}

// Close drives the LED off and returns the pin to input with pull-down
// (the Raspberry Pi boot default) before releasing it.
func (r *RealLine) Close() error {
	if r.line == nil {
		return nil
	}
	var err error
	if e := r.line.SetValue(0); e != nil {
		err = multierr.Append(err, fmt.Errorf("drive IR pin low: %w", e))
	}
	if e := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); e != nil {
		err = multierr.Append(err, fmt.Errorf("reconfigure IR pin: %w", e))
	}
	if e := r.line.Close(); e != nil {
		err = multierr.Append(err, fmt.Errorf("close IR pin: %w", e))
	}
	r.line = nil
	return err
}
