// Package serial opens the micro:bit's USB serial port for the host tools.
package serial

import (
	"io"
)

// Port represents a serial port interface.
// Tests substitute one end of a net.Pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// DefaultBaud is the micro:bit interface chip's UART rate
const DefaultBaud = 115200

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the micro:bit UART bridge
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the settings the ada firmware expects
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
