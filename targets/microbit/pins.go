//go:build microbit || microbit_v2

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/delay"

	"ada/core"
)

// PinDriver implements core.GPIODriver and core.PulseDriver on the
// micro:bit GPIO. Pin numbers are machine.Pin values.
type PinDriver struct {
	configured map[core.GPIOPin]machine.Pin
}

// NewPinDriver creates the micro:bit pin driver
func NewPinDriver() *PinDriver {
	return &PinDriver{configured: make(map[core.GPIOPin]machine.Pin)}
}

// ConfigureOutput configures a pin as a digital output
func (d *PinDriver) ConfigureOutput(pin core.GPIOPin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = p
	return nil
}

// ConfigureInput configures a pin as a floating input
func (d *PinDriver) ConfigureInput(pin core.GPIOPin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinInput})
	d.configured[pin] = p
	return nil
}

// SetPin drives an output
func (d *PinDriver) SetPin(pin core.GPIOPin, value bool) error {
	machine.Pin(pin).Set(value)
	return nil
}

// GetPin reads a pin
func (d *PinDriver) GetPin(pin core.GPIOPin) (bool, error) {
	return machine.Pin(pin).Get(), nil
}

// PulseIn waits for pin to reach level and times how long it stays there,
// against the 1MHz timer.
func (d *PinDriver) PulseIn(pin core.GPIOPin, level bool, timeout time.Duration) (uint32, error) {
	p := machine.Pin(pin)
	budget := uint32(timeout / time.Microsecond)
	start := micros()

	for p.Get() != level {
		if micros()-start >= budget {
			return 0, core.ErrPulseTimeout
		}
	}
	rise := micros()
	for p.Get() == level {
		if micros()-start >= budget {
			return 0, core.ErrPulseTimeout
		}
	}
	return micros() - rise, nil
}

// delayMicros busy-waits in cycle-counted loops
func delayMicros(us uint32) {
	delay.Sleep(time.Duration(us) * time.Microsecond)
}
