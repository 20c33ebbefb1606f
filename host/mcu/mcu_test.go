package mcu_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"spibus/core/sim"
	"spibus/host/mcu"
	"spibus/protocol"
)

func connect(t *testing.T) (*mcu.MCU, *sim.Board) {
	t.Helper()
	board := sim.Start()
	m := mcu.New(board.Port(), zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() {
		test.That(t, m.Close(), test.ShouldBeNil)
		test.That(t, board.Close(), test.ShouldBeNil)
	})
	return m, board
}

func TestIdentify(t *testing.T) {
	m, _ := connect(t)

	err := m.Send(context.Background(), "get_config", nil)
	test.That(t, errors.Is(err, mcu.ErrNoDictionary), test.ShouldBeTrue)

	test.That(t, m.Identify(context.Background()), test.ShouldBeNil)
	dict := m.Dictionary()
	test.That(t, dict, test.ShouldNotBeNil)
	test.That(t, dict.Version, test.ShouldStartWith, "spibus-")
	test.That(t, dict.Config["MCU"], test.ShouldEqual, "sim")
	test.That(t, dict.Enumeration("spi_bus"), test.ShouldResemble, map[string]int{"spi0": 0, "spi1": 1})
	test.That(t, len(m.RawDictionary()), test.ShouldBeGreaterThan, 40)

	id, err := dict.CommandID("identify")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldEqual, uint16(1))
	id, err = dict.ResponseID("spi_transfer_response")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dict.Format(id), test.ShouldEqual, "spi_transfer_response oid=%c response=%*s")

	_, err = dict.CommandID("get_uptime")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGetConfig(t *testing.T) {
	m, _ := connect(t)
	ctx := context.Background()
	test.That(t, m.Identify(ctx), test.ShouldBeNil)

	state, err := m.GetConfig(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldResemble, mcu.ConfigState{MoveCount: 16})

	err = m.Send(ctx, "finalize_config", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 0xCAFE)
	})
	test.That(t, err, test.ShouldBeNil)
	state, err = m.GetConfig(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state.IsConfig, test.ShouldBeTrue)
	test.That(t, state.CRC, test.ShouldEqual, uint32(0xCAFE))

	test.That(t, m.Send(ctx, "emergency_stop", nil), test.ShouldBeNil)
	state, err = m.GetConfig(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state.IsShutdown, test.ShouldBeTrue)
}

func TestQuerySkipsOtherResponses(t *testing.T) {
	m, _ := connect(t)
	ctx := context.Background()
	test.That(t, m.Identify(ctx), test.ShouldBeNil)

	// The shutdown response is queued ahead of the config answer.
	test.That(t, m.Send(ctx, "emergency_stop", nil), test.ShouldBeNil)
	state, err := m.GetConfig(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state.IsShutdown, test.ShouldBeTrue)
}

func TestQueryTimeout(t *testing.T) {
	m, _ := connect(t)
	ctx := context.Background()
	test.That(t, m.Identify(ctx), test.ShouldBeNil)
	m.SetTimeout(50 * time.Millisecond)

	// allocate_oids has no response.
	err := m.Query(ctx, "allocate_oids", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
	}, "config", func([]byte) (bool, error) { return true, nil })
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)

	test.That(t, m.Query(ctx, "nope", nil, "config", nil), test.ShouldNotBeNil)
}

func TestDecodeResponse(t *testing.T) {
	id, data, err := mcu.DecodeResponse([]byte{0x81, 0x00, 0x07})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldEqual, uint16(128))
	test.That(t, data, test.ShouldResemble, []byte{0x07})

	_, _, err = mcu.DecodeResponse([]byte{0x81})
	test.That(t, err, test.ShouldNotBeNil)
}
