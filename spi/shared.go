package spi

import "sync"

// Shared is a peripheral used by several buses with different settings:
// mode, rate or pin mux. Each bus gets its own Port from Shared.Port, and
// the peripheral is reconfigured whenever a bus is selected after another
// configuration ran last.
type Shared struct {
	mu      sync.Mutex
	active  any
	applied int
}

// Port returns a Port on p for the configuration identified by key, which
// must be comparable. configure runs on Select(true) when key is not the
// active configuration. A configure error is returned by every Exchange up
// to the next Select(true).
func (s *Shared) Port(p Port, key any, configure func() error) Port {
	return &sharedPort{shared: s, port: p, key: key, configure: configure}
}

// Invalidate forgets the active configuration, so the next selected bus
// applies its own. Call it after configuring the peripheral directly.
func (s *Shared) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// Active returns the key of the last applied configuration, or nil.
func (s *Shared) Active() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Applied returns how many times a configuration was applied.
func (s *Shared) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

func (s *Shared) acquire(key any, configure func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == key {
		return nil
	}
	s.active = nil
	if err := configure(); err != nil {
		return err
	}
	s.active = key
	s.applied++
	return nil
}

type sharedPort struct {
	shared    *Shared
	port      Port
	key       any
	configure func() error
	err       error
}

func (p *sharedPort) Select(active bool) {
	if active {
		p.err = p.shared.acquire(p.key, p.configure)
	}
	p.port.Select(active)
}

func (p *sharedPort) Exchange(out, in []byte) error {
	if p.err != nil {
		return p.err
	}
	return p.port.Exchange(out, in)
}
