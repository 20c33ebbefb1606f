//go:build !tinygo

// Package sim runs the firmware command layer in-process, behind an
// in-memory serial link. Hardware SPI buses are loopbacks and GPIO pins are
// plain memory, so a host can be exercised without a board.
//
// The command layer is global state: only one Board may run at a time.
package sim

import (
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"spibus/core"
	"spibus/spi"
)

// Board is a running simulated MCU.
type Board struct {
	GPIO *GPIO

	mu     sync.Mutex
	ports  map[core.SPIBusID]*spi.Loopback
	shared map[core.SPIBusID]*spi.Shared
	buses  map[busKey]*spi.Hardware
	modes  map[core.SPIBusID][]spi.Mode

	host net.Conn
	dev  net.Conn
	done chan struct{}
	err  error
}

type busKey struct {
	id   core.SPIBusID
	mode spi.Mode
}

// BusCount is the number of hardware SPI buses a Board offers.
const BusCount = 2

// Start registers the board's drivers with the command layer and starts
// serving commands.
func Start() *Board {
	b := &Board{
		GPIO:   NewGPIO(),
		ports:  make(map[core.SPIBusID]*spi.Loopback),
		shared: make(map[core.SPIBusID]*spi.Shared),
		buses:  make(map[busKey]*spi.Hardware),
		modes:  make(map[core.SPIBusID][]spi.Mode),
		done:   make(chan struct{}),
	}
	b.host, b.dev = net.Pipe()

	core.InitCoreCommands()
	core.InitSPICommands()
	core.InitGPIOCommands()
	core.ResetFirmwareState()
	core.SetGPIODriver(b.GPIO)
	core.SetSPIDriver(b)
	core.SetSoftwareSPIDriver(core.NewSoftwareSPIDriver(b.GPIO, spi.DelayFunc(func(uint32) {})))
	core.RegisterConstant("MCU", "sim")

	link := core.NewLink(b.dev)
	go func() {
		defer close(b.done)
		b.err = link.Run()
	}()
	return b
}

// Port returns the host end of the link.
func (b *Board) Port() io.ReadWriteCloser {
	return b.host
}

// Loopback returns the port behind a hardware bus, or nil before a device
// was set on it.
func (b *Board) Loopback(id core.SPIBusID) *spi.Loopback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ports[id]
}

// ConfigureBus returns the loopback bus id in config's mode. Devices in
// different modes get separate buses sharing the loopback; the loopback is
// switched to a bus's mode when that bus starts a transaction.
func (b *Board) ConfigureBus(config core.SPIConfig) (spi.Bus, error) {
	if config.BusID >= BusCount {
		return nil, errors.Errorf("no spi bus %d", config.BusID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := busKey{id: config.BusID, mode: config.Mode}
	if bus, ok := b.buses[key]; ok {
		return bus, nil
	}
	port, ok := b.ports[config.BusID]
	if !ok {
		port = &spi.Loopback{}
		b.ports[config.BusID] = port
		b.shared[config.BusID] = &spi.Shared{}
	}
	id, mode := config.BusID, config.Mode
	bus := spi.NewHardware(b.shared[id].Port(port, mode, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.modes[id] = append(b.modes[id], mode)
		return nil
	}), mode)
	b.buses[key] = bus
	return bus, nil
}

// Modes returns the modes the loopback id was switched to, in order.
func (b *Board) Modes(id core.SPIBusID) []spi.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]spi.Mode(nil), b.modes[id]...)
}

// BusInfo names the hardware buses.
func (b *Board) BusInfo() map[core.SPIBusID]string {
	return map[core.SPIBusID]string{0: "spi0", 1: "spi1"}
}

// Close stops the board. The host end is closed too when the host has not
// closed it already.
func (b *Board) Close() error {
	err := multierr.Combine(b.dev.Close(), b.host.Close())
	<-b.done
	core.SetResponseSender(nil)
	if b.err != nil && !errors.Is(b.err, io.ErrClosedPipe) {
		err = multierr.Append(err, b.err)
	}
	return err
}
