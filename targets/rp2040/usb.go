//go:build rp2040

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// Configure machine.Serial (which is USB CDC on RP2040)
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}

// usbWriter adapts the CDC port to io.Writer for the report table
type usbWriter struct{}

func (usbWriter) Write(p []byte) (int, error) {
	return USBWriteBytes(p)
}

var crlf = []byte("\r\n")

// usbLogWriter is the core.LogWriter for the board
func usbLogWriter(line string) {
	USBWriteBytes([]byte(line))
	USBWriteBytes(crlf)
}
