//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"spibus/core"
)

var errUSBStalled = errors.New("usb write stalled")

// InitDebugUART routes core debug output to UART0 on GPIO0 (TX) and GPIO1
// (RX) at 115200 baud.
func InitDebugUART() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}
	core.SetDebugWriter(func(msg string) {
		uart.Write([]byte(msg))
		uart.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.DebugPrintln("=== spibus " + mcuName + " debug UART ===")
}
