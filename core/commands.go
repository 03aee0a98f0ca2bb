package core

import (
	"sync/atomic"

	"ada/protocol"
)

// FirmwareState holds the global firmware state
type FirmwareState struct {
	isShutdown uint32 // atomic bool
}

var globalState = &FirmwareState{}

// InitCoreCommands registers the link-level commands.
// identify_response and identify must be IDs 0 and 1: the host relies on
// them before it has the dictionary.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_shutdown=%c version=%*s")
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

// handleGetUptime reports microseconds since boot as two 32-bit halves
func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()

	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})

	return nil
}

// handleGetConfig reports the shutdown flag and firmware version
func handleGetConfig(data *[]byte) error {
	var shutdown uint32
	if IsShutdown() {
		shutdown = 1
	}

	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, shutdown)
		protocol.EncodeVLQString(output, Version)
	})

	return nil
}

// TryShutdown marks the firmware as shut down. Sensor commands keep
// answering, but with a not-configured status.
func TryShutdown(reason string) {
	atomic.StoreUint32(&globalState.isShutdown, 1)
	DebugPrintln("[core] shutdown: " + reason)
}

// IsShutdown returns true if the firmware is in shutdown state
func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState clears the shutdown flag after a host reconnect
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.isShutdown, 0)
}

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SendResponse encodes a registered response on the global transport.
// It panics for unregistered names: every response is declared at boot.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		panic("Response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// Global reset handler (set by target-specific code)
var globalResetHandler func()

// resetPending is set when a reset command is received; the reset itself
// happens in the main loop once the ACK is out.
var resetPending uint32 // atomic bool

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset runs the reset handler if a reset was requested
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 && globalResetHandler != nil {
		globalResetHandler()
	}
}
