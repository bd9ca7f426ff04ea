// SPDX-License-Identifier: MIT
package control

import (
	"fmt"

	"github.com/chabad360/go-osc/osc"
)

// ProtocolError describes a message that matched a known address but could
// not be decoded into a command. Handlers log it and drop the message.
type ProtocolError struct {
	Address string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("control: %s: %v", e.Address, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protoErrf(address, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Address: address, Err: fmt.Errorf(format, args...)}
}

// Argument decoding. OSC senders are inconsistent about numeric type tags
// (a control surface may emit 'i' where another emits 'f' for the same
// knob), so every numeric accessor accepts all four numeric tags.

func floatArg(msg *osc.Message, i int) (float64, error) {
	if i >= len(msg.Arguments) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := msg.Arguments[i].(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("argument %d: want number, got %T", i, msg.Arguments[i])
}

func intArg(msg *osc.Message, i int) (int, error) {
	if i >= len(msg.Arguments) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := msg.Arguments[i].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("argument %d: want integer, got %T", i, msg.Arguments[i])
}

func stringArg(msg *osc.Message, i int) (string, error) {
	if i >= len(msg.Arguments) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	if s, ok := msg.Arguments[i].(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("argument %d: want string, got %T", i, msg.Arguments[i])
}

// boolArg accepts OSC booleans and the 0/1 integer convention.
func boolArg(msg *osc.Message, i int) (bool, error) {
	if i >= len(msg.Arguments) {
		return false, fmt.Errorf("missing argument %d", i)
	}
	switch v := msg.Arguments[i].(type) {
	case bool:
		return v, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	}
	return false, fmt.Errorf("argument %d: want bool or 0/1, got %T", i, msg.Arguments[i])
}

// eqGain maps a 0..100 control value to a linear band gain. 50 is unity,
// 0 kills the band, 100 doubles it. Out-of-range values clamp.
func eqGain(value int) float64 {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return float64(value) / 50.0
}
