//go:build rp2350

package main

const (
	mcuName   = "rp2350"
	gpioCount = 48
)
