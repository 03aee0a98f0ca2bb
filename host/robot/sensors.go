package robot

import (
	"fmt"
	"time"

	"ada/core"
	"ada/firmware"
	"ada/protocol"
	"ada/sensors/color"
	"ada/sensors/ultrasound"
)

// statusError maps a response status to an error. invalid is returned for
// StatusInvalidArgument so callers see the sensor package's own sentinel.
func statusError(status uint32, invalid error) error {
	switch uint8(status) {
	case firmware.StatusOK:
		return nil
	case firmware.StatusNoEcho:
		return ultrasound.ErrNoEcho
	case firmware.StatusInvalidArgument:
		if invalid != nil {
			return invalid
		}
		return ErrInvalidArgument
	case firmware.StatusBusError:
		return ErrBusError
	case firmware.StatusNotConfigured:
		return ErrNotConfigured
	default:
		return fmt.Errorf("robot: unknown status %d", status)
	}
}

// wireValue resolves name through the firmware's enumeration, falling back
// to the local value for firmware that does not publish one.
func (r *Robot) wireValue(enum, name string, local uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dictionary != nil {
		if v, ok := r.dictionary.Enum(enum, name); ok {
			return uint32(v)
		}
	}
	return local
}

// ReadDistance fires one ping and returns the distance in unit
func (r *Robot) ReadDistance(unit ultrasound.Unit) (uint32, error) {
	if !unit.Valid() {
		return 0, ultrasound.ErrUnknownUnit
	}
	wire := r.wireValue("distance_unit", unit.String(), uint32(unit))

	fields, _, err := r.query("query_distance", "distance_state", 3, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, wire)
	})
	if err != nil {
		return 0, err
	}
	// unit status value
	if err := statusError(fields[1], ultrasound.ErrUnknownUnit); err != nil {
		return 0, err
	}
	return fields[2], nil
}

// ColorReading is one raw color sample plus the clear channel
type ColorReading struct {
	RGB   color.RGB
	Clear uint16
}

// Color returns the normalized sample
func (c ColorReading) Color() color.Color {
	return c.RGB.Normalize()
}

// ReadColor returns the raw red, green, blue and clear channels
func (r *Robot) ReadColor() (ColorReading, error) {
	fields, _, err := r.query("query_color", "color_state", 5, nil)
	if err != nil {
		return ColorReading{}, err
	}
	// status red green blue clear
	if err := statusError(fields[0], nil); err != nil {
		return ColorReading{}, err
	}
	return ColorReading{
		RGB: color.RGB{
			R: uint16(fields[1]),
			G: uint16(fields[2]),
			B: uint16(fields[3]),
		},
		Clear: uint16(fields[4]),
	}, nil
}

// ReadChannel returns a single raw channel
func (r *Robot) ReadChannel(ch color.Channel) (uint16, error) {
	if !ch.Valid() {
		return 0, color.ErrUnknownChannel
	}
	wire := r.wireValue("color_channel", ch.String(), uint32(ch))

	fields, _, err := r.query("query_color_channel", "color_channel_state", 3, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, wire)
	})
	if err != nil {
		return 0, err
	}
	// channel status value
	if err := statusError(fields[1], color.ErrUnknownChannel); err != nil {
		return 0, err
	}
	return uint16(fields[2]), nil
}

// ColorSensorID returns the color sensor's part ID byte. A sensor that is
// absent or not answering reports ErrBusError.
func (r *Robot) ColorSensorID() (uint8, error) {
	fields, _, err := r.query("query_color_id", "color_id_state", 2, nil)
	if err != nil {
		return 0, err
	}
	// status id
	if err := statusError(fields[0], nil); err != nil {
		return 0, err
	}
	return uint8(fields[1]), nil
}

// MatchResult is the firmware's verdict on a color match
type MatchResult struct {
	Match bool

	// Distance is the Euclidean distance between the normalized sample
	// and the target, rounded down.
	Distance uint32
}

// MatchColor compares the current reading with target on the firmware.
// A negative tolerance selects the firmware's default.
func (r *Robot) MatchColor(target color.Target, tolerance int) (MatchResult, error) {
	fields, _, err := r.query("query_color_match", "color_match_state", 3, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(target))
		protocol.EncodeVLQInt(output, int32(tolerance))
	})
	if err != nil {
		return MatchResult{}, err
	}
	// status match distance
	if err := statusError(fields[0], color.ErrInvalidTarget); err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Match: fields[1] != 0, Distance: fields[2]}, nil
}

// IsReadingColor reports whether the sensor sees target within tolerance
func (r *Robot) IsReadingColor(target color.Target, tolerance int) (bool, error) {
	res, err := r.MatchColor(target, tolerance)
	return res.Match, err
}

// I2CRead reads n bytes from the device at addr, after writing reg when
// it is not empty.
func (r *Robot) I2CRead(addr uint8, reg []byte, n int) ([]byte, error) {
	if !core.ValidI2CAddress(uint32(addr)) {
		return nil, fmt.Errorf("%w: address %#x is not 7-bit", ErrInvalidArgument, addr)
	}
	if n <= 0 || n > firmware.MaxI2CRead {
		return nil, fmt.Errorf("%w: read length %d outside 1..%d", ErrInvalidArgument, n, firmware.MaxI2CRead)
	}

	fields, data, err := r.query("i2c_read", "i2c_read_response", 2, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(addr))
		protocol.EncodeVLQBytes(output, reg)
		protocol.EncodeVLQUint(output, uint32(n))
	})
	if err != nil {
		return nil, err
	}
	// addr status response
	if err := statusError(fields[1], nil); err != nil {
		return nil, err
	}
	return data, nil
}

// I2CWrite writes data to the device at addr. The firmware does not
// answer writes; a failed write shuts it down, which the next query
// reports as ErrNotConfigured.
func (r *Robot) I2CWrite(addr uint8, data []byte) error {
	if !core.ValidI2CAddress(uint32(addr)) {
		return fmt.Errorf("%w: address %#x is not 7-bit", ErrInvalidArgument, addr)
	}
	return r.send("i2c_write", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(addr))
		protocol.EncodeVLQBytes(output, data)
	})
}

// Uptime returns how long the firmware has been running
func (r *Robot) Uptime() (time.Duration, error) {
	fields, _, err := r.query("get_uptime", "uptime", 2, nil)
	if err != nil {
		return 0, err
	}
	us := uint64(fields[0])<<32 | uint64(fields[1])
	return time.Duration(us) * time.Microsecond, nil
}

// FirmwareStatus reports the firmware version and whether it is shut down
func (r *Robot) FirmwareStatus() (version string, shutdown bool, err error) {
	fields, raw, err := r.query("get_config", "config", 1, nil)
	if err != nil {
		return "", false, err
	}
	return string(raw), fields[0] != 0, nil
}
