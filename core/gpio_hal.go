package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that sensor code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a floating digital input
	ConfigureInput(pin GPIOPin) error

	// SetPin drives the pin high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin level
	GetPin(pin GPIOPin) (bool, error)
}
