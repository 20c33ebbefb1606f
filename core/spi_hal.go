package core

import "spibus/spi"

// SPIBusID identifies a hardware SPI bus configuration.
type SPIBusID uint32

// SPIConfig is the bus setup requested by spi_set_bus.
type SPIConfig struct {
	BusID SPIBusID
	Mode  spi.Mode
	Rate  uint32 // clock rate in Hz
}

// SPIDriver is the abstract hardware SPI interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type SPIDriver interface {
	// ConfigureBus sets up a hardware bus and returns it. Buses from
	// ConfigureBus manage their own chip select, if any.
	ConfigureBus(config SPIConfig) (spi.Bus, error)

	// BusInfo describes the available buses for the dictionary.
	BusInfo() map[SPIBusID]string
}

// SoftwareSPIDriver builds bit-banged buses on GPIO pins.
type SoftwareSPIDriver interface {
	ConfigureSoftwareSPI(sclk, mosi, miso GPIOPin, mode spi.Mode) (spi.Bus, error)
}

var (
	spiDriver         SPIDriver
	softwareSPIDriver SoftwareSPIDriver
)

// SetSPIDriver is called by target-specific code to register its hardware
// SPI driver.
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
	if d == nil {
		return
	}
	ids := make([]string, 0, len(d.BusInfo()))
	for id, name := range d.BusInfo() {
		for int(id) >= len(ids) {
			ids = append(ids, "")
		}
		ids[id] = name
	}
	RegisterEnumeration("spi_bus", ids)
}

// SetSoftwareSPIDriver is called by target-specific code to register its
// software SPI driver.
func SetSoftwareSPIDriver(d SoftwareSPIDriver) {
	softwareSPIDriver = d
}

// MustSPI returns the configured hardware SPI driver or panics if missing.
func MustSPI() SPIDriver {
	if spiDriver == nil {
		panic("SPI driver not configured")
	}
	return spiDriver
}

// GetSoftwareSPI returns the software SPI driver or nil if not available.
func GetSoftwareSPI() SoftwareSPIDriver {
	return softwareSPIDriver
}
