//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"spibus/core"
	"spibus/spi"
	"spibus/spi/tinyspi"
)

var errInvalidBus = errors.New("invalid SPI bus ID")

// spiBusConfig is one bus the host can select: a controller (or a PIO state
// machine when hw is nil) on a pin set.
type spiBusConfig struct {
	hw   *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
	name string
}

// Klipper's rp2040 bus names, plus PIO buses on free pins.
var rpSPIBuses = map[core.SPIBusID]spiBusConfig{
	0: {hw: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0, name: "spi0a"},
	1: {hw: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4, name: "spi0b"},
	2: {hw: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16, name: "spi0c"},
	3: {hw: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20, name: "spi0d"},
	4: {hw: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO4, name: "spi0e"},

	5: {hw: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8, name: "spi1a"},
	6: {hw: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12, name: "spi1b"},
	7: {hw: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24, name: "spi1c"},
	8: {hw: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO12, name: "spi1d"},

	9:  {sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO20, name: "pio0a"},
	10: {sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO28, name: "pio0b"},
}

// RPSPIDriver implements core.SPIDriver. Every bus is an spi.Hardware on a
// tinyspi.Port, so device chip selects stay on GPIOs driven by the core.
// Buses on one controller share it through an spi.Shared, which applies a
// bus's pins, mode and rate when one of its transactions starts.
type RPSPIDriver struct {
	buses       map[busKey]*spi.Hardware
	controllers map[*machine.SPI]*spi.Shared
	pioBuses    map[core.SPIBusID]*spi.Shared
	pio         *pioAllocator
}

type busKey struct {
	id   core.SPIBusID
	mode spi.Mode
	rate uint32
}

// NewRPSPIDriver returns a driver with no bus configured.
func NewRPSPIDriver() *RPSPIDriver {
	return &RPSPIDriver{
		buses:       make(map[busKey]*spi.Hardware),
		controllers: make(map[*machine.SPI]*spi.Shared),
		pioBuses:    make(map[core.SPIBusID]*spi.Shared),
		pio:         newPIOAllocator(),
	}
}

// ConfigureBus returns the bus for config. Devices asking for the same
// settings share one bus.
func (d *RPSPIDriver) ConfigureBus(config core.SPIConfig) (spi.Bus, error) {
	key := busKey{id: config.BusID, mode: config.Mode, rate: config.Rate}
	if bus, ok := d.buses[key]; ok {
		return bus, nil
	}
	busConfig, ok := rpSPIBuses[config.BusID]
	if !ok {
		return nil, errInvalidBus
	}

	machineConfig := machine.SPIConfig{
		Frequency: config.Rate,
		SCK:       busConfig.sck,
		SDO:       busConfig.mosi,
		SDI:       busConfig.miso,
		Mode:      config.Mode.Number(),
	}

	// The controller is configured now to report bad settings early.
	var port spi.Port
	if hw := busConfig.hw; hw != nil {
		if err := hw.Configure(machineConfig); err != nil {
			return nil, err
		}
		shared, ok := d.controllers[hw]
		if !ok {
			shared = &spi.Shared{}
			d.controllers[hw] = shared
		}
		shared.Invalidate()
		port = shared.Port(tinyspi.NewPort(hw, nil), machineConfig, func() error {
			return hw.Configure(machineConfig)
		})
	} else {
		pioSPI, err := d.pio.spi(config.BusID, machineConfig)
		if err != nil {
			return nil, err
		}
		shared, ok := d.pioBuses[config.BusID]
		if !ok {
			shared = &spi.Shared{}
			d.pioBuses[config.BusID] = shared
		}
		shared.Invalidate()
		port = shared.Port(tinyspi.NewPort(pioSPI, nil), machineConfig, func() error {
			_, err := d.pio.spi(config.BusID, machineConfig)
			return err
		})
	}

	bus := spi.NewHardware(port, config.Mode)
	d.buses[key] = bus
	return bus, nil
}

// BusInfo names the selectable buses.
func (d *RPSPIDriver) BusInfo() map[core.SPIBusID]string {
	info := make(map[core.SPIBusID]string, len(rpSPIBuses))
	for id, config := range rpSPIBuses {
		info[id] = config.name
	}
	return info
}
