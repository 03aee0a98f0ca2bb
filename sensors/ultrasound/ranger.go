// Package ultrasound drives an HC-SR04 style ultrasonic ranger: a 10µs
// trigger pulse starts a ping and the echo line stays high for the sound's
// round-trip time.
package ultrasound

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ada/core"
)

// ErrNoEcho is returned when the echo line did not pulse within the
// configured timeout: nothing in range, or the sensor is disconnected.
var ErrNoEcho = errors.New("ultrasound: no echo received")

const (
	// TriggerPulseUS is the trigger high time the sensor needs to fire
	TriggerPulseUS = 10

	// DefaultEchoTimeout covers the sensor's 4m range with some margin
	DefaultEchoTimeout = 30 * time.Millisecond
)

// PinIO is what the ranger needs from the platform
type PinIO interface {
	core.GPIODriver
	core.PulseDriver
}

// Config holds the ranger wiring
type Config struct {
	Trigger core.GPIOPin
	Echo    core.GPIOPin

	// EchoTimeout bounds the wait for the echo pulse. Zero selects
	// DefaultEchoTimeout.
	EchoTimeout time.Duration
}

// Ranger owns one trigger/echo pin pair. The sensor supports a single ping
// in flight, so measurements are serialized.
type Ranger struct {
	mu      sync.Mutex
	pins    PinIO
	trigger core.GPIOPin
	echo    core.GPIOPin
	timeout time.Duration
}

// New returns a Ranger using pins for IO. Call Configure before measuring.
func New(pins PinIO, cfg Config) *Ranger {
	timeout := cfg.EchoTimeout
	if timeout <= 0 {
		timeout = DefaultEchoTimeout
	}
	return &Ranger{
		pins:    pins,
		trigger: cfg.Trigger,
		echo:    cfg.Echo,
		timeout: timeout,
	}
}

// Configure sets the pin directions and parks the trigger low
func (r *Ranger) Configure() error {
	if err := r.pins.ConfigureOutput(r.trigger); err != nil {
		return fmt.Errorf("ultrasound: configure trigger: %w", err)
	}
	if err := r.pins.ConfigureInput(r.echo); err != nil {
		return fmt.Errorf("ultrasound: configure echo: %w", err)
	}
	return r.pins.SetPin(r.trigger, false)
}

// MeasureDistance fires one ping and returns the distance in unit.
// A zero-length echo reads as 0; ErrNoEcho means the echo never finished.
func (r *Ranger) MeasureDistance(unit Unit) (uint32, error) {
	if !unit.Valid() {
		return 0, ErrUnknownUnit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	duration, err := r.ping()
	if err != nil {
		return 0, err
	}
	return unit.Convert(duration)
}

// ping runs the trigger/echo sequence. Caller must hold r.mu.
func (r *Ranger) ping() (uint32, error) {
	if err := r.trigger10us(); err != nil {
		return 0, err
	}

	duration, err := r.pins.PulseIn(r.echo, true, r.timeout)
	if errors.Is(err, core.ErrPulseTimeout) {
		return 0, ErrNoEcho
	}
	if err != nil {
		return 0, fmt.Errorf("ultrasound: echo: %w", err)
	}

	return duration, nil
}

// trigger10us holds the trigger high for TriggerPulseUS with interrupts
// masked so the pulse is not stretched.
func (r *Ranger) trigger10us() error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)

	if err := r.pins.SetPin(r.trigger, true); err != nil {
		return fmt.Errorf("ultrasound: trigger high: %w", err)
	}
	core.DelayMicroseconds(TriggerPulseUS)
	if err := r.pins.SetPin(r.trigger, false); err != nil {
		return fmt.Errorf("ultrasound: trigger low: %w", err)
	}
	return nil
}
