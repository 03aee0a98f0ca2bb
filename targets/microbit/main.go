//go:build microbit || microbit_v2

package main

import (
	"device/arm"
	"machine"
	"time"

	"ada/core"
	"ada/firmware"
	"ada/protocol"
	"ada/sensors/color"
	"ada/sensors/ultrasound"
)

// Edge connector wiring of the ada extension board
const (
	triggerPin = machine.P15
	echoPin    = machine.P14
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32
)

func main() {
	InitSerial()
	initMicrosTimer()
	core.TimerInit()
	core.DelayMicroseconds = delayMicros

	pins := NewPinDriver()

	ranger := ultrasound.New(pins, ultrasound.Config{
		Trigger: core.GPIOPin(triggerPin),
		Echo:    core.GPIOPin(echoPin),
	})
	if err := ranger.Configure(); err != nil {
		msgerrors++
		ranger = nil
	}

	var sensor *color.Sensor
	if bus, err := InitI2C(); err == nil {
		core.SetI2CBus(bus)
		sensor = color.New(bus, color.Config{})
	} else {
		msgerrors++
	}

	core.InitCoreCommands()
	firmware.InitSensorCommands(firmware.Sensors{Ranger: ranger, Color: sensor})
	registerMicrobitPins()

	// Build and cache dictionary after all commands registered
	core.GetGlobalDictionary().SetBuildVersions("tinygo-microbit")
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		// Clear buffers on host reset
		inputBuffer.Reset()
		outputBuffer.Reset()

		core.ResetFirmwareState()
	})
	// Responses are queued ahead of the ACK; push both out together
	transport.SetFlushCallback(writeSerial)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		arm.SystemReset()
	})

	go serialReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				before := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)
				messagesReceived++

				// Remove consumed bytes from FIFO
				if consumed := before - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeSerial()
				messagesSent++
			}

			// Reset only once the ACK is out
			core.CheckPendingReset()
		}()

		// Yield to the reader goroutine
		time.Sleep(50 * time.Microsecond)
	}
}

// handleCommand dispatches received commands to the command registry
func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// registerMicrobitPins publishes the edge connector names P0-P20
func registerMicrobitPins() {
	names := make([]string, 0, 21)
	for i := 0; i <= 20; i++ {
		names = append(names, "P"+core.Itoa(i))
	}
	core.RegisterEnumeration("edge_pin", names)
	core.RegisterConstant("ULTRASOUND_TRIGGER_PIN", "P15")
	core.RegisterConstant("ULTRASOUND_ECHO_PIN", "P14")
}
