//go:build rp2040 || rp2350

// Command rp2040 is the firmware for RP2040 and RP2350 boards: it serves
// SPI commands from a host over USB CDC on hardware, PIO and software buses.
package main

import (
	"machine"
	"time"

	"spibus/core"
)

func main() {
	// Clear a watchdog left running by the previous firmware.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	usb := InitUSB()
	InitDebugUART()
	InitClock()

	// identify must be registered first.
	core.InitCoreCommands()
	core.InitSPICommands()
	core.InitGPIOCommands()
	registerPins()

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)
	core.SetSPIDriver(NewRPSPIDriver())
	core.SetSoftwareSPIDriver(core.NewSoftwareSPIDriver(gpioDriver, timerDelay))
	core.SetResetHandler(watchdogReset)

	// Build the dictionary now rather than on the first identify.
	core.GetGlobalDictionary().Build()

	link := core.NewLink(usb)
	for {
		if err := link.Run(); err != nil {
			core.DebugPrintln("link: " + err.Error())
		}
		// The host went away; start over on its next connection.
		link.Reset()
		time.Sleep(10 * time.Millisecond)
	}
}

// watchdogReset reboots through the watchdog, which also re-enumerates USB.
func watchdogReset() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(time.Millisecond)
	}
}
