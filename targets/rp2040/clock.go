//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"spibus/core"
	"spibus/spi"
)

// Timer peripheral: a free-running 64-bit microsecond counter.
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock publishes the timer constants.
func InitClock() {
	core.RegisterConstant("MCU", mcuName)
	core.RegisterConstant("CLOCK_FREQ", uint32(1000000))
}

// GetHardwareTime returns the low 32 bits of the microsecond counter.
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// timerDelay busy-waits on the microsecond counter. Waits shorter than a
// microsecond return at once; GPIO writes already take that long.
var timerDelay = spi.DelayFunc(func(ns uint32) {
	us := ns / 1000
	if us == 0 {
		return
	}
	start := GetHardwareTime()
	for GetHardwareTime()-start < us {
	}
})
