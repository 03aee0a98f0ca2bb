package ultrasound

import (
	"errors"
	"strings"
)

// ErrUnknownUnit is returned for a Unit outside the defined set
var ErrUnknownUnit = errors.New("ultrasound: unknown distance unit")

// Unit selects how a raw echo duration is reported.
type Unit uint8

// Wire values match the extension's block enumeration.
const (
	Centimeters Unit = iota
	Inches
	Microseconds
)

// Valid reports whether u is one of the defined units
func (u Unit) Valid() bool {
	return u <= Microseconds
}

// Convert turns a round-trip echo duration into a distance in u, rounding
// down. Sound travels 0.034 cm/µs (0.0133 in/µs); the echo covers the
// distance twice.
func (u Unit) Convert(durationUS uint32) (uint32, error) {
	d := uint64(durationUS)
	switch u {
	case Centimeters:
		return uint32(d * 17 / 1000), nil
	case Inches:
		return uint32(d * 133 / 20000), nil
	case Microseconds:
		return durationUS, nil
	default:
		return 0, ErrUnknownUnit
	}
}

func (u Unit) String() string {
	switch u {
	case Centimeters:
		return "cm"
	case Inches:
		return "inches"
	case Microseconds:
		return "microseconds"
	default:
		return "unknown"
	}
}

// ParseUnit accepts the names used by the host tools
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cm", "centimeters", "centimetres":
		return Centimeters, nil
	case "in", "inch", "inches":
		return Inches, nil
	case "us", "µs", "micros", "microseconds":
		return Microseconds, nil
	default:
		return 0, ErrUnknownUnit
	}
}

// UnitNames lists the units in wire order, for the data dictionary
func UnitNames() []string {
	return []string{Centimeters.String(), Inches.String(), Microseconds.String()}
}
