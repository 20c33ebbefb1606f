//go:build !tinygo

package protocol

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

// fakeMCU runs a device Transport on one end of a pipe.
type fakeMCU struct {
	conn    net.Conn
	tr      *Transport
	out     *ScratchOutput
	silent  atomic.Bool
	stopped chan struct{}
}

func newFakeMCU(conn net.Conn, handler func(tr *Transport, id uint16, data *[]byte) error) *fakeMCU {
	m := &fakeMCU{conn: conn, out: NewScratchOutput(), stopped: make(chan struct{})}
	m.tr = NewTransport(m.out, func(id uint16, data *[]byte) error {
		return handler(m.tr, id, data)
	})
	go m.run()
	return m
}

func (m *fakeMCU) run() {
	defer close(m.stopped)
	fifo := NewFifoBuffer(MessageMax)
	buf := make([]byte, 64)
	for {
		n, err := m.conn.Read(buf)
		if err != nil {
			return
		}
		if m.silent.Load() {
			continue
		}
		fifo.Write(buf[:n])
		m.tr.Receive(fifo)
		if res := m.out.Result(); len(res) > 0 {
			if _, err := m.conn.Write(res); err != nil {
				return
			}
			m.out.Reset()
		}
	}
}

func newLink(t *testing.T, handler func(tr *Transport, id uint16, data *[]byte) error) (*HostTransport, *fakeMCU) {
	t.Helper()
	hostEnd, mcuEnd := net.Pipe()
	mcu := newFakeMCU(mcuEnd, handler)
	host := NewHostTransport(hostEnd, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() {
		host.Close()
		mcuEnd.Close()
		<-mcu.stopped
	})
	return host, mcu
}

func doubler(tr *Transport, id uint16, data *[]byte) error {
	v, err := DecodeVLQUint(data)
	if err != nil {
		return err
	}
	tr.SendCommand(id+1, func(o OutputBuffer) { EncodeVLQUint(o, 2*v) })
	return nil
}

func TestHostTransportRoundTrip(t *testing.T) {
	host, _ := newLink(t, doubler)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := uint32(1); i <= 20; i++ {
		err := host.SendCommand(ctx, 7, func(o OutputBuffer) { EncodeVLQUint(o, i) })
		test.That(t, err, test.ShouldBeNil)

		msg, err := host.ReceiveResponse(ctx)
		test.That(t, err, test.ShouldBeNil)
		data := msg.Payload
		id, err := DecodeVLQUint(&data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, id, test.ShouldEqual, uint32(8))
		v, err := DecodeVLQUint(&data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldEqual, 2*i)
	}
	// Twenty blocks wrap the four bit counter once.
	test.That(t, host.Sequence(), test.ShouldEqual, uint8(0x14))
}

func TestHostTransportResponseHandler(t *testing.T) {
	host, _ := newLink(t, doubler)
	got := make(chan uint16, 1)
	host.SetResponseHandler(func(id uint16, data *[]byte) { got <- id })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, host.SendCommand(ctx, 2, func(o OutputBuffer) { EncodeVLQUint(o, 1) }), test.ShouldBeNil)
	test.That(t, <-got, test.ShouldEqual, uint16(3))
}

func TestHostTransportAckTimeout(t *testing.T) {
	host, mcu := newLink(t, doubler)
	mcu.silent.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := host.SendCommand(ctx, 7, nil)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
}

func TestHostTransportPayloadTooLong(t *testing.T) {
	host, _ := newLink(t, doubler)
	err := host.SendCommand(context.Background(), 7, func(o OutputBuffer) {
		o.Output(make([]byte, MessagePayloadMax))
	})
	test.That(t, errors.Is(err, ErrPayloadTooLong), test.ShouldBeTrue)
	test.That(t, host.Sequence(), test.ShouldEqual, uint8(MessageDest))
}

func TestHostTransportClosed(t *testing.T) {
	host, _ := newLink(t, doubler)
	test.That(t, host.Close(), test.ShouldBeNil)
	test.That(t, host.Close(), test.ShouldBeNil)

	_, err := host.ReceiveResponse(context.Background())
	test.That(t, err, test.ShouldEqual, ErrTransportClosed)
}
