//go:build microbit || microbit_v2

package main

import (
	"machine"
	"time"
)

// The interface chip bridges UART0 to USB; it is the only serial link, so
// debug output stays off.
var port = machine.DefaultUART

// InitSerial configures the USB bridge UART
func InitSerial() {
	port.Configure(machine.UARTConfig{BaudRate: 115200})
}

// serialReaderLoop moves received bytes into the input FIFO
func serialReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go serialReaderLoop()
		}
	}()

	for {
		for port.Buffered() > 0 {
			b, err := port.ReadByte()
			if err != nil {
				msgerrors++
				break
			}
			if !inputBuffer.PushByte(b) {
				// Buffer full - error condition
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeSerial drains the output buffer to the UART
func writeSerial() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	written := 0
	for written < len(result) {
		n, err := port.Write(result[written:])
		if err != nil || n == 0 {
			msgerrors++
			break
		}
		written += n
	}
	outputBuffer.Reset()
}
