package main

import (
	"context"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"spibus/core/sim"
	"spibus/host/config"
	"spibus/host/mcu"
	"spibus/host/remote"
	"spibus/spi"
	"spibus/spi/periphspi"
)

// openBus is a bus with the select line its transactions use and whatever
// must be closed after it.
type openBus struct {
	bus spi.Bus
	sel spi.OutputPin
	// mcu is set for remote buses.
	mcu *mcu.MCU

	closers []func() error
}

// Close releases everything in reverse order of opening.
func (b *openBus) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Combine(err, b.closers[i]())
	}
	b.closers = nil
	return err
}

func open(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*openBus, error) {
	mode, err := cfg.SPIMode()
	if err != nil {
		return nil, err
	}

	b := &openBus{sel: spi.NoSelect}
	switch cfg.Kind {
	case config.KindLoopback:
		b.bus = spi.NewHardware(&spi.Loopback{}, mode)
	case config.KindBitbang:
		err = openBitbang(b, cfg.Bitbang, mode)
	case config.KindSpidev:
		err = openSpidev(b, cfg.Spidev, mode)
	case config.KindRemote:
		err = openRemote(ctx, b, cfg.Remote, mode, cfg.Rate, logger)
	default:
		err = errors.Errorf("unknown bus kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, multierr.Combine(err, b.Close())
	}
	return b, nil
}

func initHost() error {
	_, err := host.Init()
	return errors.Wrap(err, "initializing periph host drivers")
}

func pinByName(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no GPIO pin %q", name)
	}
	return pin, nil
}

func openBitbang(b *openBus, cfg *config.BitbangConfig, mode spi.Mode) error {
	if err := initHost(); err != nil {
		return err
	}
	sclkPin, err := pinByName(cfg.SCLK)
	if err != nil {
		return err
	}
	mosiPin, err := pinByName(cfg.MOSI)
	if err != nil {
		return err
	}
	misoPin, err := pinByName(cfg.MISO)
	if err != nil {
		return err
	}

	sclk, err := periphspi.NewOutput(sclkPin, mode.ClockPolarity)
	if err != nil {
		return err
	}
	mosi, err := periphspi.NewOutput(mosiPin, false)
	if err != nil {
		return err
	}
	miso, err := periphspi.NewInput(misoPin, gpio.PullUp)
	if err != nil {
		return err
	}

	if cfg.CS != "" {
		csPin, err := pinByName(cfg.CS)
		if err != nil {
			return err
		}
		cs, err := periphspi.NewOutput(csPin, !cfg.CSActiveHigh)
		if err != nil {
			return err
		}
		b.sel = cs
		if cfg.CSActiveHigh {
			b.sel = spi.Inverted{Pin: cs}
		}
	}

	b.bus = spi.NewBitbang(sclk, mosi, miso, mode, spi.WithDelay(spi.ClockDelay{Clock: clock.New()}))
	return nil
}

func openSpidev(b *openBus, cfg *config.SpidevConfig, mode spi.Mode) error {
	if err := initHost(); err != nil {
		return err
	}
	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return errors.Wrapf(err, "opening spi port %q", cfg.Port)
	}
	b.closers = append(b.closers, port.Close)

	conn, err := port.Connect(physic.Frequency(mode.Rate())*physic.Hertz, periphspi.PeriphMode(mode), 8)
	if err != nil {
		return errors.Wrap(err, "connecting to spi port")
	}
	b.bus = spi.NewHardware(periphspi.NewPort(conn), mode)
	return nil
}

func openRemote(
	ctx context.Context,
	b *openBus,
	cfg *config.RemoteConfig,
	mode spi.Mode,
	rate uint32,
	logger *zap.SugaredLogger,
) error {
	if cfg.Sim {
		board := sim.Start()
		b.closers = append(b.closers, board.Close)
		b.mcu = mcu.New(board.Port(), logger.Named("mcu"))
		b.closers = append(b.closers, b.mcu.Close)
		if err := b.mcu.Identify(ctx); err != nil {
			return err
		}
	} else {
		m, err := mcu.Connect(ctx, &cfg.Serial, logger.Named("mcu"))
		if err != nil {
			return err
		}
		b.mcu = m
		b.closers = append(b.closers, m.Close)
	}

	rc := remote.Config{
		OID:          cfg.OID,
		CSPin:        remote.NoPin,
		CSActiveHigh: cfg.CSActiveHigh,
		Software:     cfg.Software,
		SCLK:         cfg.SCLK,
		MOSI:         cfg.MOSI,
		MISO:         cfg.MISO,
		Mode:         mode,
		Rate:         rate,
	}
	if cfg.CSPin != nil {
		rc.CSPin = *cfg.CSPin
	}
	if !cfg.Software {
		buses := b.mcu.Dictionary().Enumeration("spi_bus")
		id, ok := buses[cfg.Bus]
		if !ok {
			return errors.Errorf("board has no spi bus %q (have %v)", cfg.Bus, sortedKeys(buses))
		}
		rc.BusID = uint32(id)
	}

	bus, err := remote.New(ctx, b.mcu, rc, logger.Named("remote"))
	if err != nil {
		return err
	}
	b.bus = bus
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
