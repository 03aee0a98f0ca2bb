package core

import (
	"errors"
	"time"
)

// ErrPulseTimeout is returned by a PulseDriver when the pulse did not start
// or did not finish before the timeout elapsed.
var ErrPulseTimeout = errors.New("pulse measurement timed out")

// PulseDriver measures the width of a single pulse on an input pin.
type PulseDriver interface {
	// PulseIn waits for pin to reach level, then returns how long, in
	// microseconds, it stayed there. Both phases share the timeout budget;
	// ErrPulseTimeout is returned when it runs out.
	PulseIn(pin GPIOPin, level bool, timeout time.Duration) (uint32, error)
}
