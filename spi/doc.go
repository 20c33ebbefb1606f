// Package spi implements a hardware-agnostic duplex serial bus (SPI).
//
// Client code talks to a Bus only through a Transaction:
//
//	tx := spi.Begin(bus, csn)
//	defer tx.Close()
//	tx.WriteOne(0x9F, nil).Read(3, id)
//
// A Bus supplies a forward transfer (first byte first), a reverse transfer
// (last byte first) and the start/end hooks that bracket a Transaction.
// Concrete buses embed Base, which derives whichever transfer direction the
// bus does not implement from the other one through a byte-flipped scratch
// buffer.
//
// Implementations in this module:
//
//   - Bitbang drives clock, data-out and data-in lines in software and
//     supports all four clock polarity/phase modes.
//   - Hardware hands transfers to a peripheral Port (SPI controller, DMA,
//     PIO state machine) and lets the port manage chip select.
//   - spitest.Bus records written bytes and replays prepared input.
//
// Buses are not safe for concurrent use and only one Transaction may be
// open per bus at a time.
package spi
