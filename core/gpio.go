// Digital outputs for device control lines (reset, enable, write-protect)
// that sit next to SPI chips. There is no timer queue: updates apply as the
// command arrives and shutdown drives every pin to its default level.
package core

import (
	"fmt"

	"spibus/protocol"
)

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // current pin level
	DF_DEFAULT_ON = 1 << 1 // level restored on shutdown
)

// DigitalOut is one configured output pin.
type DigitalOut struct {
	OID   uint8
	Pin   GPIOPin
	Flags uint8
}

// On reports the current level.
func (d *DigitalOut) On() bool {
	return d.Flags&DF_ON != 0
}

func (d *DigitalOut) set(on bool) error {
	if err := MustGPIO().SetPin(d.Pin, on); err != nil {
		return err
	}
	if on {
		d.Flags |= DF_ON
	} else {
		d.Flags &^= DF_ON
	}
	return nil
}

var digitalOutputs = make(map[uint8]*DigitalOut)

// InitGPIOCommands registers the digital output commands.
func InitGPIOCommands() {
	RegisterCommand("config_digital_out", "oid=%c pin=%u value=%c default_value=%c", handleConfigDigitalOut)
	RegisterCommand("update_digital_out", "oid=%c value=%c", handleUpdateDigitalOut)
}

// GetDigitalOut returns a configured output.
func GetDigitalOut(oid uint8) (*DigitalOut, bool) {
	d, ok := digitalOutputs[oid]
	return d, ok
}

func handleConfigDigitalOut(data *[]byte) error {
	var args [4]uint32
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		args[i] = v
	}
	oid, pin, value, defaultValue := uint8(args[0]), GPIOPin(args[1]), args[2] != 0, args[3] != 0

	dout := &DigitalOut{OID: oid, Pin: pin}
	if defaultValue {
		dout.Flags |= DF_DEFAULT_ON
	}
	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		return err
	}
	if err := dout.set(value); err != nil {
		return err
	}
	digitalOutputs[oid] = dout
	return nil
}

func handleUpdateDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	dout, ok := digitalOutputs[uint8(oid)]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOID, oid)
	}
	if IsShutdown() {
		return nil
	}
	return dout.set(value != 0)
}

// ShutdownAllDigitalOut returns every output to its default level.
func ShutdownAllDigitalOut() {
	for _, dout := range digitalOutputs {
		if err := dout.set(dout.Flags&DF_DEFAULT_ON != 0); err != nil {
			DebugPrintln("digital out shutdown: " + err.Error())
		}
	}
}

// ResetDigitalOut forgets every output. Pins keep their level.
func ResetDigitalOut() {
	digitalOutputs = make(map[uint8]*DigitalOut)
}
