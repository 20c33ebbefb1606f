package spi

import "sync"

// Loopback is a Port with MISO wired to MOSI: every exchange reads back what
// it sent. It keeps the sent bytes and select count for inspection.
type Loopback struct {
	mu       sync.Mutex
	selected bool
	selects  int
	sent     []byte
}

var _ Port = (*Loopback)(nil)

// Select records the select state.
func (l *Loopback) Select(active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if active && !l.selected {
		l.selects++
	}
	l.selected = active
}

// Exchange copies out into in.
func (l *Loopback) Exchange(out, in []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, out...)
	copy(in, out)
	return nil
}

// Selected reports whether select is asserted.
func (l *Loopback) Selected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected
}

// Selects returns how many times select was asserted.
func (l *Loopback) Selects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selects
}

// Sent returns every byte exchanged so far.
func (l *Loopback) Sent() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.sent...)
}
