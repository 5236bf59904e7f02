//go:build !linux

package ir

import "errors"

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// NewRealLine returns an error on non-Linux platforms.
func NewRealLine(chip string, offset int) (*RealLine, error) {
	return nil, errors.New("ir: gpio not supported on this platform (requires Linux)")
}

// SetValue is not implemented on non-Linux platforms.
func (r *RealLine) SetValue(v int) error {
	return errors.New("ir: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealLine) Close() error {
	return nil
}
