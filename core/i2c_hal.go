package core

import "tinygo.org/x/drivers"

// MaxI2CAddress is the highest 7-bit address. Larger wire values are
// rejected, not masked onto another device.
const MaxI2CAddress = 0x7F

// ValidI2CAddress reports whether a decoded wire value fits in 7 bits
func ValidI2CAddress(addr uint32) bool {
	return addr <= MaxI2CAddress
}

// I2CBus is the bus abstraction shared with the TinyGo driver ecosystem.
// machine.I2C satisfies it on hardware; tests substitute a fake.
type I2CBus = drivers.I2C

// Global singleton used by the raw i2c commands.
var i2cBus I2CBus

// SetI2CBus is called by target-specific code to register its bus.
func SetI2CBus(b I2CBus) {
	i2cBus = b
}

// I2C returns the configured bus, or nil when the target has none.
func I2C() I2CBus {
	return i2cBus
}
