// Package command decodes remote-control commands from the wire and hands
// them to the dispatch loop.
//
// Two payload forms are accepted. The binary form is the 4-byte record
// written by the phone app: channel, port, signed power, mode. The JSON
// form names its fields and may carry a raw PWM value instead of power.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/pfir-bridge/internal/pfir"
)

// WireSize is the length of a binary command record.
const WireSize = 4

// PowerFloat is the power byte that requests float rather than brake.
const PowerFloat = -128

// ErrMalformed is returned for payloads that are neither form.
var ErrMalformed = errors.New("malformed command")

// MapEven maps x from [inMin, inMax] onto [outMin, outMax] so that every
// output value receives an equal share of the input range. x is clamped.
func MapEven(x, inMin, inMax, outMin, outMax int) int {
	if x < inMin {
		x = inMin
	}
	if x > inMax {
		x = inMax
	}
	inRange := inMax - inMin + 1
	outRange := outMax - outMin + 1
	bucket := (x - inMin) * outRange / inRange
	if bucket >= outRange {
		bucket = outRange - 1
	}
	return outMin + bucket
}

// PowerToValue converts signed power to a PWM nibble. -128 floats the
// output; otherwise -127..127 spreads over 1..15 and is rotated about 8 so
// that positive power runs forward (1..7), zero brakes (8) and negative
// power runs in reverse (9..15, fastest first).
func PowerToValue(power int8) uint8 {
	if power == PowerFloat {
		return pfir.ValueFloat
	}
	v := MapEven(int(power), -127, 127, 1, 15)
	switch {
	case v > pfir.ValueBrake:
		v -= pfir.ValueBrake
	case v < pfir.ValueBrake:
		v += pfir.ValueBrake
	}
	return uint8(v)
}

// DecodeBinary decodes a 4-byte record.
func DecodeBinary(b []byte) (pfir.Command, error) {
	if len(b) != WireSize {
		return pfir.Command{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformed, len(b), WireSize)
	}
	cmd := pfir.Command{
		Channel: b[0],
		Port:    pfir.Port(b[1]),
		Value:   PowerToValue(int8(b[2])),
		Mode:    pfir.Mode(b[3]),
	}
	if err := cmd.Validate(); err != nil {
		return pfir.Command{}, err
	}
	return cmd, nil
}

// EncodeBinary is the inverse of DecodeBinary for a raw power byte.
func EncodeBinary(channel uint8, port pfir.Port, power int8, mode pfir.Mode) []byte {
	return []byte{channel, uint8(port), uint8(power), uint8(mode)}
}

// JSONCommand is the named-field form. Exactly one of Value and Power is set.
type JSONCommand struct {
	Channel int    `json:"channel"`
	Port    string `json:"port"`
	Value   *int   `json:"value,omitempty"`
	Power   *int   `json:"power,omitempty"`
	Mode    string `json:"mode"`
}

// DecodeJSON decodes the named-field form. Mode defaults to combo.
func DecodeJSON(b []byte) (pfir.Command, error) {
	var jc JSONCommand
	if err := json.Unmarshal(b, &jc); err != nil {
		return pfir.Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return jc.Command()
}

// Command converts jc to a validated command.
func (jc JSONCommand) Command() (pfir.Command, error) {
	if jc.Channel < pfir.MinChannel || jc.Channel > pfir.MaxChannel {
		return pfir.Command{}, fmt.Errorf("%w: channel %d", pfir.ErrInvalidArgument, jc.Channel)
	}
	port, err := pfir.ParsePort(jc.Port)
	if err != nil {
		return pfir.Command{}, err
	}
	mode := pfir.ModeComboSpurt
	if jc.Mode != "" {
		if mode, err = pfir.ParseMode(jc.Mode); err != nil {
			return pfir.Command{}, err
		}
	}

	var value uint8
	switch {
	case jc.Value != nil && jc.Power != nil:
		return pfir.Command{}, fmt.Errorf("%w: both value and power set", ErrMalformed)
	case jc.Value != nil:
		if *jc.Value < 0 || *jc.Value > pfir.MaxValue {
			return pfir.Command{}, fmt.Errorf("%w: value %d", pfir.ErrInvalidArgument, *jc.Value)
		}
		value = uint8(*jc.Value)
	case jc.Power != nil:
		if *jc.Power < -128 || *jc.Power > 127 {
			return pfir.Command{}, fmt.Errorf("%w: power %d", pfir.ErrInvalidArgument, *jc.Power)
		}
		value = PowerToValue(int8(*jc.Power))
	default:
		return pfir.Command{}, fmt.Errorf("%w: no value or power", ErrMalformed)
	}

	cmd := pfir.Command{Channel: uint8(jc.Channel), Port: port, Value: value, Mode: mode}
	return cmd, cmd.Validate()
}

// Decode accepts either form. A payload whose first non-space byte is '{'
// is JSON; anything else must be a binary record.
func Decode(b []byte) (pfir.Command, error) {
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '{' {
		return DecodeJSON(t)
	}
	return DecodeBinary(b)
}
