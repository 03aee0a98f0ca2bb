// Package color reads a TCS34725 style RGBC color sensor over I2C and
// matches its readings against target colors.
package color

import (
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"ada/core"
)

// ErrUnknownChannel is returned for a Channel outside the defined set
var ErrUnknownChannel = errors.New("color: unknown channel")

// Channel selects one of the sensor's data registers
type Channel uint8

const (
	Red Channel = iota
	Green
	Blue
	Clear
)

// Valid reports whether c is one of the defined channels
func (c Channel) Valid() bool {
	return c <= Clear
}

func (c Channel) register() (uint8, bool) {
	switch c {
	case Red:
		return regRData, true
	case Green:
		return regGData, true
	case Blue:
		return regBData, true
	case Clear:
		return regCData, true
	default:
		return 0, false
	}
}

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Clear:
		return "clear"
	default:
		return "unknown"
	}
}

// ParseChannel maps a channel name to its Channel
func ParseChannel(s string) (Channel, error) {
	for _, c := range []Channel{Red, Green, Blue, Clear} {
		if s == c.String() {
			return c, nil
		}
	}
	return 0, ErrUnknownChannel
}

// ChannelNames lists the channels in wire order, for the data dictionary
func ChannelNames() []string {
	return []string{Red.String(), Green.String(), Blue.String(), Clear.String()}
}

// Config holds the sensor's bus address
type Config struct {
	// Address defaults to Address (0x29) when zero
	Address uint16
}

// Sensor is a handle on one color sensor. It powers the sensor on lazily
// on first use, and holds the bus for whole register transactions so
// concurrent callers cannot interleave.
type Sensor struct {
	mu          sync.Mutex
	bus         drivers.I2C
	address     uint16
	initialized bool
	tx          [2]byte
	rx          [2]byte
}

// New returns a Sensor on bus. Nothing is sent until the first read or
// an explicit Enable.
func New(bus drivers.I2C, cfg Config) *Sensor {
	addr := cfg.Address
	if addr == 0 {
		addr = Address
	}
	return &Sensor{bus: bus, address: addr}
}

// Configured reports whether the power-on sequence has completed
func (s *Sensor) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Enable powers the sensor on and waits for its first integration cycle.
// Only the first successful call talks to the sensor.
func (s *Sensor) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enableLocked()
}

func (s *Sensor) enableLocked() error {
	if s.initialized {
		return nil
	}

	if err := s.writeRegister(regEnable, enablePowerOn); err != nil {
		return fmt.Errorf("color: power on: %w", err)
	}
	core.DelayMilliseconds(powerOnDelayMS)

	if err := s.writeRegister(regEnable, enablePowerOn|enableRGBC); err != nil {
		return fmt.Errorf("color: enable RGBC: %w", err)
	}
	core.DelayMilliseconds(integrationTimeMS)

	s.initialized = true
	core.DebugPrintln("[color] sensor enabled at 0x" + hexByte(uint8(s.address)))
	return nil
}

// ReadRaw reads the red, green and blue channels as one sample
func (s *Sensor) ReadRaw() (RGB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(nil)
}

// ReadRGBC reads red, green, blue and clear in one locked pass, so no
// other caller can start a read between the color channels and clear.
func (s *Sensor) ReadRGBC() (RGB, uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var clearValue uint16
	sample, err := s.readLocked(&clearValue)
	if err != nil {
		return RGB{}, 0, err
	}
	return sample, clearValue, nil
}

// readLocked reads R, G and B, then clear when clearValue is set.
// Caller must hold s.mu.
func (s *Sensor) readLocked(clearValue *uint16) (RGB, error) {
	if err := s.enableLocked(); err != nil {
		return RGB{}, err
	}

	var sample RGB
	for _, ch := range []struct {
		reg uint8
		dst *uint16
	}{
		{regRData, &sample.R},
		{regGData, &sample.G},
		{regBData, &sample.B},
		{regCData, clearValue},
	} {
		if ch.dst == nil {
			continue
		}
		v, err := s.readRegister16(ch.reg)
		if err != nil {
			return RGB{}, err
		}
		*ch.dst = v
	}

	return sample, nil
}

// Channel returns a single raw channel
func (s *Sensor) Channel(ch Channel) (uint16, error) {
	reg, ok := ch.register()
	if !ok {
		return 0, ErrUnknownChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enableLocked(); err != nil {
		return 0, err
	}
	return s.readRegister16(reg)
}

// ReadID returns the sensor's part identification byte
// (0x44 for a TCS34725, 0x4D for a TCS34727).
func (s *Sensor) ReadID() (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tx[0] = regCommand | regID
	if err := s.bus.Tx(s.address, s.tx[:1], s.rx[:1]); err != nil {
		return 0, fmt.Errorf("color: read id: %w", err)
	}
	return s.rx[0], nil
}

// Sample reads the sensor and returns the normalized color
func (s *Sensor) Sample() (Color, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return Color{}, err
	}
	return raw.Normalize(), nil
}

// IsReadingColor matches the current reading against target using
// DefaultTolerance.
func (s *Sensor) IsReadingColor(target Target) (bool, error) {
	return s.IsReadingColorWithTolerance(target, DefaultTolerance)
}

// IsReadingColorWithTolerance matches the current reading against target.
// tolerance is clamped to [MinTolerance, MaxTolerance].
func (s *Sensor) IsReadingColorWithTolerance(target Target, tolerance int) (bool, error) {
	sample, err := s.Sample()
	if err != nil {
		return false, err
	}
	return Match(sample, target, tolerance), nil
}

// writeRegister writes one byte to reg. Caller must hold s.mu.
func (s *Sensor) writeRegister(reg, value uint8) error {
	s.tx[0] = regCommand | reg
	s.tx[1] = value
	return s.bus.Tx(s.address, s.tx[:2], nil)
}

// readRegister16 reads a little-endian 16-bit register pair starting at
// reg. Caller must hold s.mu.
func (s *Sensor) readRegister16(reg uint8) (uint16, error) {
	s.tx[0] = regCommand | reg
	if err := s.bus.Tx(s.address, s.tx[:1], s.rx[:2]); err != nil {
		return 0, fmt.Errorf("color: read %s register: %w", registerName(reg), err)
	}
	return uint16(s.rx[0]) | uint16(s.rx[1])<<8, nil
}

func registerName(reg uint8) string {
	switch reg {
	case regRData:
		return "red"
	case regGData:
		return "green"
	case regBData:
		return "blue"
	case regCData:
		return "clear"
	default:
		return "0x" + hexByte(reg)
	}
}

func hexByte(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
