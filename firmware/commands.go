// Package firmware exposes the robot's sensors as protocol commands.
// Each query answers with a state response whose status byte says whether
// the value fields are meaningful.
package firmware

import (
	"errors"

	"ada/core"
	"ada/protocol"
	"ada/sensors/color"
	"ada/sensors/ultrasound"
)

// Status codes carried in every sensor response
const (
	StatusOK uint8 = iota
	StatusNoEcho
	StatusInvalidArgument
	StatusBusError
	StatusNotConfigured
)

// StatusNames lists the status codes in wire order, for the data dictionary
func StatusNames() []string {
	return []string{"ok", "no_echo", "invalid_argument", "bus_error", "not_configured"}
}

// MaxI2CRead bounds i2c_read so the response fits one frame
const MaxI2CRead = 32

// Sensors holds the devices the command handlers talk to. A nil field
// makes its queries answer StatusNotConfigured.
type Sensors struct {
	Ranger *ultrasound.Ranger
	Color  *color.Sensor
}

var sensors Sensors

// InitSensorCommands registers the sensor commands and their enumerations.
// Call after core.InitCoreCommands so identify keeps IDs 0 and 1.
func InitSensorCommands(s Sensors) {
	sensors = s

	RegisterEnumerations()

	core.RegisterConstant("ULTRASOUND_TRIGGER_US", ultrasound.TriggerPulseUS)
	core.RegisterConstant("COLOR_DEFAULT_TOLERANCE", color.DefaultTolerance)
	core.RegisterConstant("COLOR_MIN_TOLERANCE", color.MinTolerance)
	core.RegisterConstant("COLOR_MAX_TOLERANCE", color.MaxTolerance)
	core.RegisterConstant("I2C_MAX_READ", MaxI2CRead)

	core.RegisterCommand("query_distance", "unit=%c", handleQueryDistance)
	core.RegisterCommand("query_color", "", handleQueryColor)
	core.RegisterCommand("query_color_channel", "channel=%c", handleQueryColorChannel)
	core.RegisterCommand("query_color_match", "rgb=%u tolerance=%i", handleQueryColorMatch)
	core.RegisterCommand("query_color_id", "", handleQueryColorID)

	core.RegisterResponse("distance_state", "unit=%c status=%c value=%u")
	core.RegisterResponse("color_state", "status=%c red=%hu green=%hu blue=%hu clear=%hu")
	core.RegisterResponse("color_channel_state", "channel=%c status=%c value=%hu")
	core.RegisterResponse("color_match_state", "status=%c match=%c distance=%u")
	core.RegisterResponse("color_id_state", "status=%c id=%c")

	initI2CCommands()
}

// RegisterEnumerations publishes the symbolic names of the unit, channel
// and status fields.
func RegisterEnumerations() {
	core.RegisterEnumeration("distance_unit", ultrasound.UnitNames())
	core.RegisterEnumeration("color_channel", color.ChannelNames())
	core.RegisterEnumeration("status", StatusNames())
}

// Format: query_distance unit=%c
func handleQueryDistance(data *[]byte) error {
	unit, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var value uint32
	status := StatusOK
	switch {
	case sensors.Ranger == nil || core.IsShutdown():
		status = StatusNotConfigured
	case unit > 0xFF:
		status = StatusInvalidArgument
	default:
		value, err = sensors.Ranger.MeasureDistance(ultrasound.Unit(unit))
		status = distanceStatus(err)
		if err != nil {
			core.DebugPrintln("[ultrasound] " + err.Error())
		}
	}

	core.SendResponse("distance_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, unit)
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQUint(output, value)
	})
	return nil
}

func distanceStatus(err error) uint8 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ultrasound.ErrNoEcho):
		return StatusNoEcho
	case errors.Is(err, ultrasound.ErrUnknownUnit):
		return StatusInvalidArgument
	default:
		return StatusBusError
	}
}

// Format: query_color
func handleQueryColor(data *[]byte) error {
	var raw color.RGB
	var clearValue uint16
	status := colorReady()
	if status == StatusOK {
		var err error
		raw, clearValue, err = sensors.Color.ReadRGBC()
		status = colorStatus(err)
	}

	core.SendResponse("color_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQUint(output, uint32(raw.R))
		protocol.EncodeVLQUint(output, uint32(raw.G))
		protocol.EncodeVLQUint(output, uint32(raw.B))
		protocol.EncodeVLQUint(output, uint32(clearValue))
	})
	return nil
}

// Format: query_color_channel channel=%c
func handleQueryColorChannel(data *[]byte) error {
	ch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var value uint16
	status := colorReady()
	if status == StatusOK && ch > 0xFF {
		status = StatusInvalidArgument
	}
	if status == StatusOK {
		value, err = sensors.Color.Channel(color.Channel(ch))
		status = colorStatus(err)
	}

	core.SendResponse("color_channel_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, ch)
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQUint(output, uint32(value))
	})
	return nil
}

// Format: query_color_match rgb=%u tolerance=%i
// A negative tolerance selects the default.
func handleQueryColorMatch(data *[]byte) error {
	rgb, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	tolerance, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}

	target := color.Target(rgb)
	tol := int(tolerance)
	if tol < 0 {
		tol = color.DefaultTolerance
	}

	var match bool
	var distance uint32
	status := colorReady()
	if status == StatusOK && rgb > 0xFFFFFF {
		status = StatusInvalidArgument
	}
	if status == StatusOK {
		sample, err := sensors.Color.Sample()
		status = colorStatus(err)
		if err == nil {
			match = color.Match(sample, target, tol)
			distance = uint32(sample.Distance(target.Color()))
		}
	}

	core.SendResponse("color_match_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQUint(output, boolToUint(match))
		protocol.EncodeVLQUint(output, distance)
	})
	return nil
}

// Format: query_color_id
// Reads the part ID without powering the sensor on, so the host can
// tell a missing or wrong sensor from one that is simply idle.
func handleQueryColorID(data *[]byte) error {
	var id uint8
	status := colorReady()
	if status == StatusOK {
		var err error
		id, err = sensors.Color.ReadID()
		status = colorStatus(err)
	}

	core.SendResponse("color_id_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQUint(output, uint32(id))
	})
	return nil
}

func colorReady() uint8 {
	if sensors.Color == nil || core.IsShutdown() {
		return StatusNotConfigured
	}
	return StatusOK
}

func colorStatus(err error) uint8 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, color.ErrUnknownChannel):
		return StatusInvalidArgument
	default:
		core.DebugPrintln("[color] " + err.Error())
		return StatusBusError
	}
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
