//go:build microbit || microbit_v2

package main

import (
	"machine"

	"ada/core"
)

// InitI2C configures the edge connector bus (P19 SCL, P20 SDA) the color
// sensor sits on.
func InitI2C() (core.I2CBus, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 100_000,
		SCL:       machine.SCL_PIN,
		SDA:       machine.SDA_PIN,
	})
	if err != nil {
		return nil, err
	}
	return bus, nil
}
