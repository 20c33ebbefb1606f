package spi

import (
	"testing"

	"go.viam.com/test"
)

func TestDefaultMode(t *testing.T) {
	m := DefaultMode()
	test.That(t, m.ClockPolarity, test.ShouldBeFalse)
	test.That(t, m.ClockPhase, test.ShouldBeFalse)
	test.That(t, m.HalfPeriodNs, test.ShouldEqual, 1000)
	test.That(t, m.Number(), test.ShouldEqual, 0)
}

func TestModeNumbers(t *testing.T) {
	for n := uint8(0); n < 4; n++ {
		m, err := ModeFromNumber(n, 250)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m.Number(), test.ShouldEqual, n)
		test.That(t, m.HalfPeriodNs, test.ShouldEqual, 250)
	}

	m, err := ModeFromNumber(2, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldResemble, NewMode(true, false, 10))

	_, err = ModeFromNumber(4, 10)
	test.That(t, err, test.ShouldBeError, ErrInvalidMode)
}

func TestHalfPeriodFromRate(t *testing.T) {
	test.That(t, HalfPeriodFromRate(0), test.ShouldEqual, 5000)
	test.That(t, HalfPeriodFromRate(1000000), test.ShouldEqual, 500)
	test.That(t, HalfPeriodFromRate(4000000000), test.ShouldEqual, 1)
	test.That(t, NewMode(false, false, 500).Rate(), test.ShouldEqual, 1000000)
	test.That(t, Mode{}.Rate(), test.ShouldEqual, 0)
}

func TestModeString(t *testing.T) {
	test.That(t, NewMode(false, true, 1000).String(), test.ShouldEqual, "mode 1 (cpol=0 cpha=1 half=1000ns)")
	test.That(t, NewMode(true, true, 5).String(), test.ShouldEqual, "mode 3 (cpol=1 cpha=1 half=5ns)")
}
