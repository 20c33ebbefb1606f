package core

import (
	"errors"
	"fmt"
	"strconv"

	"spibus/protocol"
	"spibus/spi"
)

// SPI device flags
const (
	SF_HARDWARE       = 0x00 // hardware bus
	SF_SOFTWARE       = 0x01 // bit-banged bus
	SF_CS_ACTIVE_HIGH = 0x02 // chip select asserts high
	SF_HAVE_PIN       = 0x04 // chip select on a GPIO
)

var (
	ErrUnknownOID      = errors.New("unknown oid")
	ErrNoBus           = errors.New("spi device has no bus")
	ErrTransactionOpen = errors.New("spi transaction already open")
	ErrNoSoftwareSPI   = errors.New("software SPI not available")
)

// SPIDevice is one configured chip on a bus. Transfers on it run inside a
// transaction on its select line; spi_begin and spi_end keep one open across
// several commands.
type SPIDevice struct {
	OID   uint8
	Flags uint8
	Pin   GPIOPin
	Bus   spi.Bus

	sel spi.OutputPin
	tx  *spi.Transaction
}

// Do runs fn in the open transaction, or in a new one around fn.
func (d *SPIDevice) Do(fn func(tx *spi.Transaction)) error {
	if d.Bus == nil {
		return fmt.Errorf("%w: oid %d", ErrNoBus, d.OID)
	}
	if d.tx != nil {
		fn(d.tx)
	} else {
		spi.Do(d.Bus, d.sel, fn)
	}
	return spi.Err(d.Bus)
}

// Begin opens a transaction that stays open until End.
func (d *SPIDevice) Begin() error {
	if d.Bus == nil {
		return fmt.Errorf("%w: oid %d", ErrNoBus, d.OID)
	}
	if d.tx != nil {
		return fmt.Errorf("%w: oid %d", ErrTransactionOpen, d.OID)
	}
	d.tx = spi.Begin(d.Bus, d.sel)
	return nil
}

// End closes the transaction opened by Begin. It does nothing when none is
// open.
func (d *SPIDevice) End() {
	if d.tx != nil {
		d.tx.Close()
		d.tx = nil
	}
}

// InTransaction reports whether a Begin is pending.
func (d *SPIDevice) InTransaction() bool {
	return d.tx != nil
}

func (d *SPIDevice) setBus(bus spi.Bus) {
	d.End()
	d.Bus = bus
}

type spiShutdown struct {
	dev *SPIDevice
	msg []byte
}

var (
	spiDevices   = make(map[uint8]*SPIDevice)
	spiShutdowns = make(map[uint8]spiShutdown)
)

// InitSPICommands registers the SPI commands.
func InitSPICommands() {
	RegisterCommand("config_spi", "oid=%c pin=%u cs_active_high=%c", handleConfigSPI)
	RegisterCommand("config_spi_without_cs", "oid=%c", handleConfigSPIWithoutCS)
	RegisterCommand("spi_set_bus", "oid=%c spi_bus=%u mode=%u rate=%u", handleSPISetBus)
	RegisterCommand("spi_set_software_bus", "oid=%c miso_pin=%u mosi_pin=%u sclk_pin=%u mode=%u rate=%u", handleSPISetSoftwareBus)
	RegisterCommand("config_spi_shutdown", "oid=%c spi_oid=%c shutdown_msg=%*s", handleConfigSPIShutdown)
	RegisterCommand("spi_transfer", "oid=%c data=%*s", handleSPITransfer)
	RegisterCommand("spi_send", "oid=%c data=%*s", handleSPISend)
	RegisterCommand("spi_transfer_reverse", "oid=%c data=%*s", handleSPITransferReverse)
	RegisterCommand("spi_begin", "oid=%c", handleSPIBegin)
	RegisterCommand("spi_end", "oid=%c", handleSPIEnd)

	RegisterResponse("spi_transfer_response", "oid=%c response=%*s")
}

// GetSPIDevice returns a configured device.
func GetSPIDevice(oid uint8) (*SPIDevice, bool) {
	dev, ok := spiDevices[oid]
	return dev, ok
}

// ResetSPI ends open transactions and forgets every device.
func ResetSPI() {
	for _, dev := range spiDevices {
		dev.End()
	}
	spiDevices = make(map[uint8]*SPIDevice)
	spiShutdowns = make(map[uint8]spiShutdown)
}

// ShutdownSPI ends open transactions and sends every configured shutdown
// message. It runs on firmware shutdown.
func ShutdownSPI() {
	for _, dev := range spiDevices {
		dev.End()
	}
	for _, sd := range spiShutdowns {
		msg := sd.msg
		if err := sd.dev.Do(func(tx *spi.Transaction) { tx.Write(len(msg), msg) }); err != nil {
			DebugPrintln("spi shutdown oid " + strconv.Itoa(int(sd.dev.OID)) + ": " + err.Error())
		}
	}
}

func lookupSPIDevice(data *[]byte) (*SPIDevice, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	dev, ok := spiDevices[uint8(oid)]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOID, oid)
	}
	return dev, nil
}

func decodeArgs(data *[]byte, args ...*uint32) error {
	for _, a := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*a = v
	}
	return nil
}

func handleConfigSPI(data *[]byte) error {
	var oid, pin, activeHigh uint32
	if err := decodeArgs(data, &oid, &pin, &activeHigh); err != nil {
		return err
	}

	sel, err := ChipSelect(MustGPIO(), GPIOPin(pin), activeHigh != 0)
	if err != nil {
		return err
	}
	dev := &SPIDevice{OID: uint8(oid), Flags: SF_HAVE_PIN, Pin: GPIOPin(pin), sel: sel}
	if activeHigh != 0 {
		dev.Flags |= SF_CS_ACTIVE_HIGH
	}
	spiDevices[dev.OID] = dev
	return nil
}

func handleConfigSPIWithoutCS(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	spiDevices[uint8(oid)] = &SPIDevice{OID: uint8(oid), sel: spi.NoSelect}
	return nil
}

func handleSPISetBus(data *[]byte) error {
	dev, err := lookupSPIDevice(data)
	if err != nil {
		return err
	}
	var busID, modeNum, rate uint32
	if err := decodeArgs(data, &busID, &modeNum, &rate); err != nil {
		return err
	}

	mode, err := spi.ModeFromNumber(uint8(modeNum), spi.HalfPeriodFromRate(rate))
	if err != nil {
		return err
	}
	bus, err := MustSPI().ConfigureBus(SPIConfig{BusID: SPIBusID(busID), Mode: mode, Rate: rate})
	if err != nil {
		return err
	}
	dev.Flags &^= SF_SOFTWARE
	dev.setBus(bus)
	return nil
}

func handleSPISetSoftwareBus(data *[]byte) error {
	dev, err := lookupSPIDevice(data)
	if err != nil {
		return err
	}
	var miso, mosi, sclk, modeNum, rate uint32
	if err := decodeArgs(data, &miso, &mosi, &sclk, &modeNum, &rate); err != nil {
		return err
	}

	mode, err := spi.ModeFromNumber(uint8(modeNum), spi.HalfPeriodFromRate(rate))
	if err != nil {
		return err
	}
	driver := GetSoftwareSPI()
	if driver == nil {
		return ErrNoSoftwareSPI
	}
	bus, err := driver.ConfigureSoftwareSPI(GPIOPin(sclk), GPIOPin(mosi), GPIOPin(miso), mode)
	if err != nil {
		return err
	}
	dev.Flags |= SF_SOFTWARE
	dev.setBus(bus)
	return nil
}

func handleConfigSPIShutdown(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	dev, err := lookupSPIDevice(data)
	if err != nil {
		return err
	}
	msg, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	spiShutdowns[uint8(oid)] = spiShutdown{dev: dev, msg: append([]byte(nil), msg...)}
	return nil
}

// decodeTransfer reads the device and payload shared by the transfer
// commands. The payload aliases the input frame.
func decodeTransfer(data *[]byte) (*SPIDevice, []byte, error) {
	dev, err := lookupSPIDevice(data)
	if err != nil {
		return nil, nil, err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return nil, nil, err
	}
	return dev, payload, nil
}

func handleSPITransfer(data *[]byte) error {
	dev, out, err := decodeTransfer(data)
	if err != nil {
		return err
	}
	in := make([]byte, len(out))
	// The host waits for a response even when the transfer fails.
	err = dev.Do(func(tx *spi.Transaction) { tx.WriteRead(len(out), out, in) })
	sendTransferResponse(dev, in)
	return err
}

func handleSPITransferReverse(data *[]byte) error {
	dev, out, err := decodeTransfer(data)
	if err != nil {
		return err
	}
	in := make([]byte, len(out))
	// The host waits for a response even when the transfer fails.
	err = dev.Do(func(tx *spi.Transaction) { tx.WriteReadReverse(len(out), out, in) })
	sendTransferResponse(dev, in)
	return err
}

func handleSPISend(data *[]byte) error {
	dev, out, err := decodeTransfer(data)
	if err != nil {
		return err
	}
	return dev.Do(func(tx *spi.Transaction) { tx.Write(len(out), out) })
}

func handleSPIBegin(data *[]byte) error {
	dev, err := lookupSPIDevice(data)
	if err != nil {
		return err
	}
	return dev.Begin()
}

func handleSPIEnd(data *[]byte) error {
	dev, err := lookupSPIDevice(data)
	if err != nil {
		return err
	}
	dev.End()
	return spi.Err(dev.Bus)
}

func sendTransferResponse(dev *SPIDevice, in []byte) {
	SendResponse("spi_transfer_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(dev.OID))
		protocol.EncodeVLQBytes(output, in)
	})
}
