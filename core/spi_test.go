package core

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"spibus/protocol"
	"spibus/spi"
	"spibus/spi/spitest"
)

type spiFixture struct {
	gpio   *fakeGPIO
	driver *fakeSPIDriver
	sender *recordSender
}

func newSPIFixture(t *testing.T) *spiFixture {
	t.Helper()
	InitCoreCommands()
	InitSPICommands()
	InitGPIOCommands()
	ResetFirmwareState()

	f := &spiFixture{gpio: newFakeGPIO(), driver: newFakeSPIDriver(), sender: &recordSender{}}
	SetGPIODriver(f.gpio)
	SetSPIDriver(f.driver)
	SetSoftwareSPIDriver(NewSoftwareSPIDriver(f.gpio, &spitest.Delay{}))
	SetResponseSender(f.sender)
	t.Cleanup(func() {
		ResetFirmwareState()
		SetResponseSender(nil)
	})
	return f
}

func (f *spiFixture) run(t *testing.T, name string, args ...interface{}) error {
	t.Helper()
	cmd, ok := globalRegistry.GetCommandByName(name)
	test.That(t, ok, test.ShouldBeTrue)
	data := encodeArgs(args...)
	err := DispatchCommand(cmd.ID, &data)
	if err == nil {
		test.That(t, data, test.ShouldBeEmpty)
	}
	return err
}

func (f *spiFixture) must(t *testing.T, name string, args ...interface{}) {
	t.Helper()
	test.That(t, f.run(t, name, args...), test.ShouldBeNil)
}

func (f *spiFixture) lastResponse(t *testing.T) (oid uint32, data []byte) {
	t.Helper()
	test.That(t, f.sender.sent, test.ShouldNotBeEmpty)
	last := f.sender.sent[len(f.sender.sent)-1]
	test.That(t, last.name, test.ShouldEqual, "spi_transfer_response")
	payload := last.payload
	oid, err := protocol.DecodeVLQUint(&payload)
	test.That(t, err, test.ShouldBeNil)
	data, err = protocol.DecodeVLQBytes(&payload)
	test.That(t, err, test.ShouldBeNil)
	return oid, data
}

func TestConfigSPIParksChipSelect(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi", 1, 5, 0)
	f.must(t, "config_spi", 2, 6, 1)

	test.That(t, f.gpio.history[5], test.ShouldResemble, []bool{true})
	test.That(t, f.gpio.history[6], test.ShouldResemble, []bool{false})

	dev, ok := GetSPIDevice(2)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, dev.Flags, test.ShouldEqual, uint8(SF_HAVE_PIN|SF_CS_ACTIVE_HIGH))

	err := f.run(t, "config_spi", 3, 99, 0)
	test.That(t, errors.Is(err, errBadPin), test.ShouldBeTrue)
}

func TestSPITransfer(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi", 1, 5, 0)
	f.must(t, "spi_set_bus", 1, 0, 3, 4000000)

	test.That(t, f.driver.configs, test.ShouldHaveLength, 1)
	cfg := f.driver.configs[0]
	test.That(t, cfg.Mode.Number(), test.ShouldEqual, uint8(3))
	test.That(t, cfg.Mode.HalfPeriodNs, test.ShouldEqual, uint32(125))
	test.That(t, cfg.Rate, test.ShouldEqual, uint32(4000000))

	bus := f.driver.buses[0]
	bus.AppendIn(0x00, 0xEF, 0x40)
	f.must(t, "spi_transfer", 1, []byte{0x9F, 0x00, 0x00})

	oid, data := f.lastResponse(t)
	test.That(t, oid, test.ShouldEqual, uint32(1))
	test.That(t, data, test.ShouldResemble, []byte{0x00, 0xEF, 0x40})
	test.That(t, bus.Written(), test.ShouldResemble, []byte{0x9F, 0x00, 0x00})
	test.That(t, f.gpio.history[5], test.ShouldResemble, []bool{true, false, true})
}

func TestSPITransferReverse(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi_without_cs", 4)
	f.must(t, "spi_set_bus", 4, 1, 0, 1000000)

	bus := f.driver.buses[1]
	bus.AppendIn(0x01, 0x02)
	f.must(t, "spi_transfer_reverse", 4, []byte{0xAA, 0xBB})

	_, data := f.lastResponse(t)
	test.That(t, bus.Written(), test.ShouldResemble, []byte{0xBB, 0xAA})
	test.That(t, data, test.ShouldResemble, []byte{0x02, 0x01})
}

func TestSPISendHasNoResponse(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi_without_cs", 1)
	f.must(t, "spi_set_bus", 1, 0, 0, 0)
	f.must(t, "spi_send", 1, []byte{0x06})

	test.That(t, f.sender.sent, test.ShouldBeEmpty)
	test.That(t, f.driver.buses[0].Written(), test.ShouldResemble, []byte{0x06})
}

func TestSPIBeginEndHoldsSelect(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi", 1, 5, 0)
	f.must(t, "spi_set_bus", 1, 0, 0, 1000000)

	f.must(t, "spi_begin", 1)
	f.must(t, "spi_send", 1, []byte{0x03, 0x00})
	f.must(t, "spi_transfer", 1, []byte{0x00, 0x00})
	test.That(t, errors.Is(f.run(t, "spi_begin", 1), ErrTransactionOpen), test.ShouldBeTrue)
	f.must(t, "spi_end", 1)
	f.must(t, "spi_end", 1)

	bus := f.driver.buses[0]
	test.That(t, bus.Starts, test.ShouldEqual, 1)
	test.That(t, bus.Ends, test.ShouldEqual, 1)
	test.That(t, f.gpio.history[5], test.ShouldResemble, []bool{true, false, true})
}

func TestSPIErrors(t *testing.T) {
	f := newSPIFixture(t)

	test.That(t, errors.Is(f.run(t, "spi_transfer", 9, []byte{1}), ErrUnknownOID), test.ShouldBeTrue)

	f.must(t, "config_spi_without_cs", 1)
	err := f.run(t, "spi_transfer", 1, []byte{1})
	test.That(t, errors.Is(err, ErrNoBus), test.ShouldBeTrue)
	// The host still gets an answer.
	_, data := f.lastResponse(t)
	test.That(t, data, test.ShouldResemble, []byte{0})

	test.That(t, errors.Is(f.run(t, "spi_set_bus", 1, 0, 4, 0), spi.ErrInvalidMode), test.ShouldBeTrue)
	test.That(t, f.run(t, "spi_set_bus", 1, 7, 0, 0), test.ShouldNotBeNil)
}

func TestSoftwareSPI(t *testing.T) {
	f := newSPIFixture(t)
	// MISO (pin 12) reads MOSI (pin 11): every byte comes back.
	f.gpio.loops[12] = 11

	f.must(t, "config_spi", 1, 5, 0)
	f.must(t, "spi_set_software_bus", 1, 12, 11, 10, 0, 500000)

	dev, _ := GetSPIDevice(1)
	test.That(t, dev.Flags&SF_SOFTWARE, test.ShouldEqual, uint8(SF_SOFTWARE))
	test.That(t, f.gpio.inputs[12], test.ShouldEqual, PullUp)

	f.must(t, "spi_transfer", 1, []byte{0xA5, 0x0F})
	_, data := f.lastResponse(t)
	test.That(t, data, test.ShouldResemble, []byte{0xA5, 0x0F})
	test.That(t, f.gpio.levels[10], test.ShouldBeFalse)

	// A second device on the same pins shares the bus.
	f.must(t, "config_spi_without_cs", 2)
	f.must(t, "spi_set_software_bus", 2, 12, 11, 10, 0, 500000)
	dev2, _ := GetSPIDevice(2)
	test.That(t, dev2.Bus, test.ShouldEqual, dev.Bus)
}

func TestShutdownSendsMessages(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi", 1, 5, 0)
	f.must(t, "spi_set_bus", 1, 0, 0, 1000000)
	f.must(t, "config_spi_shutdown", 7, 1, []byte{0xB9})
	f.must(t, "spi_begin", 1)

	f.must(t, "emergency_stop")
	test.That(t, IsShutdown(), test.ShouldBeTrue)

	bus := f.driver.buses[0]
	test.That(t, bus.Written(), test.ShouldResemble, []byte{0xB9})
	test.That(t, bus.Starts, test.ShouldEqual, 2)
	test.That(t, bus.Ends, test.ShouldEqual, 2)
	test.That(t, f.sender.sent[len(f.sender.sent)-1].name, test.ShouldEqual, "shutdown")

	// Only the first shutdown runs.
	Shutdown("again")
	test.That(t, bus.Written(), test.ShouldResemble, []byte{0xB9})
}

func TestConfigResetForgetsDevices(t *testing.T) {
	f := newSPIFixture(t)
	f.must(t, "config_spi_without_cs", 1)
	f.must(t, "finalize_config", 1234)
	f.must(t, "get_config")

	payload := f.sender.sent[0].payload
	isConfig, _ := protocol.DecodeVLQUint(&payload)
	crc, _ := protocol.DecodeVLQUint(&payload)
	test.That(t, isConfig, test.ShouldEqual, uint32(1))
	test.That(t, crc, test.ShouldEqual, uint32(1234))

	f.must(t, "config_reset")
	_, ok := GetSPIDevice(1)
	test.That(t, ok, test.ShouldBeFalse)
}
