// Package config loads the JSON description of the bus the host tool opens.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"spibus/host/serial"
	"spibus/spi"
)

// Bus kinds.
const (
	KindBitbang  = "bitbang"
	KindSpidev   = "spidev"
	KindRemote   = "remote"
	KindLoopback = "loopback"
)

// Config describes one bus and how to reach it.
type Config struct {
	Kind string `json:"kind"`

	// Mode is the SPI mode number, 0-3.
	Mode uint8 `json:"mode"`
	// Rate is the clock in Hz. HalfPeriodNs, when set, wins over Rate.
	Rate         uint32 `json:"rate,omitempty"`
	HalfPeriodNs uint32 `json:"half_period_ns,omitempty"`

	Bitbang *BitbangConfig `json:"bitbang,omitempty"`
	Spidev  *SpidevConfig  `json:"spidev,omitempty"`
	Remote  *RemoteConfig  `json:"remote,omitempty"`
}

// BitbangConfig names the host GPIO lines of a software bus.
type BitbangConfig struct {
	SCLK string `json:"sclk"`
	MOSI string `json:"mosi"`
	MISO string `json:"miso"`
	// CS is optional.
	CS           string `json:"cs,omitempty"`
	CSActiveHigh bool   `json:"cs_active_high,omitempty"`
}

// SpidevConfig selects a kernel SPI port. An empty Port opens the first one.
type SpidevConfig struct {
	Port string `json:"port,omitempty"`
}

// RemoteConfig places a device on a firmware board.
type RemoteConfig struct {
	Serial serial.Config `json:"serial"`
	// Sim runs an in-process board instead of opening Serial.
	Sim bool `json:"sim,omitempty"`

	OID uint8 `json:"oid"`
	// CSPin is the board's chip select pin. Nil means none.
	CSPin        *int `json:"cs_pin,omitempty"`
	CSActiveHigh bool `json:"cs_active_high,omitempty"`

	// Bus names a hardware bus from the board's spi_bus enumeration.
	Bus string `json:"bus,omitempty"`

	Software bool   `json:"software,omitempty"`
	SCLK     uint32 `json:"sclk,omitempty"`
	MOSI     uint32 `json:"mosi,omitempty"`
	MISO     uint32 `json:"miso,omitempty"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// LoadConfig parses, completes and validates a JSON configuration.
func LoadConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Kind == "" {
		cfg.Kind = KindLoopback
	}
	if cfg.Rate == 0 && cfg.HalfPeriodNs == 0 {
		cfg.Rate = 1000000
	}
	switch cfg.Kind {
	case KindSpidev:
		if cfg.Spidev == nil {
			cfg.Spidev = &SpidevConfig{}
		}
	case KindRemote:
		if cfg.Remote == nil {
			cfg.Remote = &RemoteConfig{}
		}
		if cfg.Remote.Serial.Baud == 0 {
			cfg.Remote.Serial.Baud = serial.DefaultBaud
		}
		if !cfg.Remote.Software && cfg.Remote.Bus == "" {
			cfg.Remote.Bus = "spi0"
		}
	}
}

// Validate reports the first problem in the configuration.
func (c *Config) Validate() error {
	if c.Mode > 3 {
		return errors.Errorf("mode %d out of range 0-3", c.Mode)
	}
	switch c.Kind {
	case KindLoopback, KindSpidev:
	case KindBitbang:
		b := c.Bitbang
		if b == nil || b.SCLK == "" || b.MOSI == "" || b.MISO == "" {
			return errors.New("bitbang bus needs sclk, mosi and miso pins")
		}
	case KindRemote:
		r := c.Remote
		if !r.Sim && r.Serial.Device == "" {
			return errors.New("remote bus needs a serial device")
		}
		if r.CSPin != nil && *r.CSPin < 0 {
			return errors.Errorf("invalid cs_pin %d", *r.CSPin)
		}
		if r.Software && r.Bus != "" {
			return errors.New("remote bus is either software or names a hardware bus")
		}
	default:
		return errors.Errorf("unknown bus kind %q", c.Kind)
	}
	return nil
}

// SPIMode returns the configured mode with its half period.
func (c *Config) SPIMode() (spi.Mode, error) {
	half := c.HalfPeriodNs
	if half == 0 {
		half = spi.HalfPeriodFromRate(c.Rate)
	}
	return spi.ModeFromNumber(c.Mode, half)
}
