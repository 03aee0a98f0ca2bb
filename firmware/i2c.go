package firmware

import (
	"ada/core"
	"ada/protocol"
)

// Raw bus access for host-side diagnostics. Devices are addressed
// directly; there is no per-device object allocation.
func initI2CCommands() {
	core.RegisterCommand("i2c_write", "addr=%c data=%*s", handleI2CWrite)
	core.RegisterCommand("i2c_read", "addr=%c reg=%*s read_len=%c", handleI2CRead)

	core.RegisterResponse("i2c_read_response", "addr=%c status=%c response=%*s")
}

// Format: i2c_write addr=%c data=%*s
func handleI2CWrite(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	writeData, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	if !core.ValidI2CAddress(addr) {
		core.DebugPrintln("[i2c] write dropped, bad address " + core.Utoa(addr))
		return nil
	}

	bus := core.I2C()
	if bus == nil || core.IsShutdown() {
		return nil
	}

	if err := bus.Tx(uint16(addr), writeData, nil); err != nil {
		// No response to carry a status; a failed write stops the firmware
		// until the host resets it.
		core.TryShutdown("I2C write error")
		return err
	}
	return nil
}

// Format: i2c_read addr=%c reg=%*s read_len=%c
// An empty reg reads without first writing a register address.
func handleI2CRead(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	reg, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	readLen, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var response []byte
	status := StatusOK
	bus := core.I2C()
	switch {
	case bus == nil || core.IsShutdown():
		status = StatusNotConfigured
	case !core.ValidI2CAddress(addr), readLen == 0, readLen > MaxI2CRead:
		status = StatusInvalidArgument
	default:
		buf := make([]byte, readLen)
		if err := bus.Tx(uint16(addr), reg, buf); err != nil {
			core.DebugPrintln("[i2c] read error: " + err.Error())
			status = StatusBusError
		} else {
			response = buf
		}
	}

	core.SendResponse("i2c_read_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQBytes(output, response)
	})
	return nil
}
