package core

import "spibus/spi"

type softwareKey struct {
	sclk, mosi, miso GPIOPin
	mode             spi.Mode
}

// softwareSPI builds spi.Bitbang buses on a GPIODriver. Devices sharing pins
// and mode share one bus.
type softwareSPI struct {
	gpio  GPIODriver
	delay spi.Delayer
	buses map[softwareKey]*spi.Bitbang
}

// NewSoftwareSPIDriver returns a portable software SPI driver. A nil delay
// uses spi.SleepDelay.
func NewSoftwareSPIDriver(gpio GPIODriver, delay spi.Delayer) SoftwareSPIDriver {
	if delay == nil {
		delay = spi.SleepDelay
	}
	return &softwareSPI{
		gpio:  gpio,
		delay: delay,
		buses: make(map[softwareKey]*spi.Bitbang),
	}
}

func (s *softwareSPI) ConfigureSoftwareSPI(sclk, mosi, miso GPIOPin, mode spi.Mode) (spi.Bus, error) {
	key := softwareKey{sclk: sclk, mosi: mosi, miso: miso, mode: mode}
	if bus, ok := s.buses[key]; ok {
		return bus, nil
	}

	for _, pin := range []GPIOPin{sclk, mosi} {
		if err := s.gpio.ConfigureOutput(pin); err != nil {
			return nil, err
		}
	}
	if err := s.gpio.ConfigureInput(miso, PullUp); err != nil {
		return nil, err
	}

	bus := spi.NewBitbang(
		DriverPin{Driver: s.gpio, Pin: sclk},
		DriverPin{Driver: s.gpio, Pin: mosi},
		DriverPin{Driver: s.gpio, Pin: miso},
		mode,
		spi.WithDelay(s.delay),
	)
	s.buses[key] = bus
	return bus, nil
}
