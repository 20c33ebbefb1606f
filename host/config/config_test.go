package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Kind, test.ShouldEqual, KindLoopback)
	test.That(t, cfg.Rate, test.ShouldEqual, uint32(1000000))

	mode, err := cfg.SPIMode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.Number(), test.ShouldEqual, uint8(0))
	test.That(t, mode.HalfPeriodNs, test.ShouldEqual, uint32(500))
}

func TestLoadRemote(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{
		"kind": "remote",
		"mode": 3,
		"half_period_ns": 250,
		"remote": {"serial": {"device": "/dev/ttyACM0"}, "oid": 2, "cs_pin": 17}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Remote.Serial.Baud, test.ShouldEqual, 250000)
	test.That(t, cfg.Remote.Bus, test.ShouldEqual, "spi0")
	test.That(t, *cfg.Remote.CSPin, test.ShouldEqual, 17)

	mode, err := cfg.SPIMode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.ClockPolarity, test.ShouldBeTrue)
	test.That(t, mode.ClockPhase, test.ShouldBeTrue)
	test.That(t, mode.HalfPeriodNs, test.ShouldEqual, uint32(250))
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		json string
		err  string
	}{
		{"bad kind", `{"kind": "i2c"}`, "unknown bus kind"},
		{"bad mode", `{"mode": 4}`, "mode 4"},
		{"bitbang pins", `{"kind": "bitbang", "bitbang": {"sclk": "GPIO11"}}`, "sclk, mosi and miso"},
		{"remote device", `{"kind": "remote"}`, "serial device"},
		{"remote cs", `{"kind": "remote", "remote": {"sim": true, "cs_pin": -1}}`, "cs_pin"},
		{"remote software", `{"kind": "remote", "remote": {"sim": true, "software": true, "bus": "spi1"}}`, "either software"},
		{"syntax", `{"kind":`, "decoding config"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig([]byte(tc.json))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.json")
	test.That(t, os.WriteFile(path, []byte(`{"kind": "spidev"}`), 0o600), test.ShouldBeNil)

	cfg, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Spidev, test.ShouldNotBeNil)
	test.That(t, cfg.Spidev.Port, test.ShouldEqual, "")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
