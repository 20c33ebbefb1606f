package spi_test

import (
	"testing"

	"go.viam.com/test"

	"spibus/spi"
	"spibus/spi/spitest"
)

func TestTransactionWriteReadScenario(t *testing.T) {
	bus := spitest.NewBus()
	bus.AppendIn(0xAA, 0x55)
	cs := spitest.NewPin(true)

	dst := make([]byte, 2)
	tx := spi.Begin(bus, cs)
	tx.WriteRead(2, []byte{0x01, 0x02}, dst)
	tx.Close()

	test.That(t, dst, test.ShouldResemble, []byte{0xAA, 0x55})
	test.That(t, bus.Match([]byte{0x01, 0x02}, true), test.ShouldBeTrue)
}

func TestTransactionRoundTrip(t *testing.T) {
	for _, a := range [][]byte{
		{},
		{0x00},
		{0x01, 0x80, 0xFF},
		make([]byte, spitest.Capacity),
	} {
		bus := spitest.NewBus()
		bus.AppendIn(a...)

		got := make([]byte, len(a))
		spi.Do(bus, spitest.NewPin(true), func(tx *spi.Transaction) {
			tx.Read(len(a), got)
		})
		test.That(t, got, test.ShouldResemble, a)
	}
}

func TestTransactionSelectBracketing(t *testing.T) {
	bus := spitest.NewBus()
	cs := spitest.NewPin(true)

	spi.Do(bus, cs, func(tx *spi.Transaction) {
		test.That(t, cs.Level, test.ShouldBeFalse)
		tx.Write(2, []byte{1, 2}).Read(1, make([]byte, 1))
		test.That(t, cs.Level, test.ShouldBeFalse)
	})

	test.That(t, cs.History, test.ShouldResemble, []bool{false, true})
	test.That(t, bus.Starts, test.ShouldEqual, 1)
	test.That(t, bus.Ends, test.ShouldEqual, 1)
}

func TestTransactionCloseOnce(t *testing.T) {
	bus := spitest.NewBus()
	tx := spi.Begin(bus, nil)
	test.That(t, tx.Select() == spi.NoSelect, test.ShouldBeTrue)
	test.That(t, tx.Bus() == spi.Bus(bus), test.ShouldBeTrue)

	tx.Close()
	tx.Close()
	test.That(t, tx.Closed(), test.ShouldBeTrue)
	test.That(t, bus.Starts, test.ShouldEqual, 1)
	test.That(t, bus.Ends, test.ShouldEqual, 1)
}

func TestTransactionClosedPanics(t *testing.T) {
	bus := spitest.NewBus()
	tx := spi.Begin(bus, nil)
	tx.Close()
	test.That(t, recovered(func() { tx.Write(1, []byte{1}) }), test.ShouldEqual, spi.ErrClosed)
}

func TestDoClosesOnPanic(t *testing.T) {
	bus := spitest.NewBus()
	cs := spitest.NewPin(true)

	v := recovered(func() {
		spi.Do(bus, cs, func(tx *spi.Transaction) {
			tx.WriteOne(0x01, nil)
			panic("boom")
		})
	})
	test.That(t, v, test.ShouldEqual, "boom")
	test.That(t, cs.Level, test.ShouldBeTrue)
	test.That(t, bus.Ends, test.ShouldEqual, 1)
}

func TestTransactionChaining(t *testing.T) {
	bus := spitest.NewBus()
	bus.AppendIn(0, 0, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E)

	head := make([]byte, 2)
	tail := make([]byte, 2)
	spi.Do(bus, nil, func(tx *spi.Transaction) {
		tx.Write(2, []byte{0x9F, 0x00}).
			Read(2, head).
			ReadReverse(2, tail).
			WriteReverse(2, []byte{0x01, 0x02}).
			WriteReadReverse(1, []byte{0x03}, nil)
	})

	test.That(t, head, test.ShouldResemble, []byte{0x0A, 0x0B})
	test.That(t, tail, test.ShouldResemble, []byte{0x0D, 0x0C})
	test.That(t, bus.Written(), test.ShouldResemble, []byte{0x9F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x03})
}

func TestTransactionSingleBytes(t *testing.T) {
	bus := spitest.NewBus()
	bus.AppendIn(0x31, 0x32, 0x33)

	var echoed byte
	var first, second byte
	spi.Do(bus, nil, func(tx *spi.Transaction) {
		first = tx.ReadOne(nil)
		out := byte(0x77)
		second = tx.ReadOne(&out)
		tx.WriteOne(0x66, &echoed)
	})

	test.That(t, first, test.ShouldEqual, 0x31)
	test.That(t, second, test.ShouldEqual, 0x32)
	test.That(t, echoed, test.ShouldEqual, 0x33)
	test.That(t, bus.Written(), test.ShouldResemble, []byte{0x00, 0x77, 0x66})
}

func TestTransactionZeroLength(t *testing.T) {
	bus := spitest.NewBus()
	cs := spitest.NewPin(true)
	spi.Do(bus, cs, func(tx *spi.Transaction) {
		tx.Write(0, nil).Read(0, nil).WriteReadReverse(0, nil, nil)
	})
	test.That(t, bus.OutSize, test.ShouldEqual, 0)
	test.That(t, cs.History, test.ShouldResemble, []bool{false, true})
}
