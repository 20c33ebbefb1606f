package spitest

// Pin is an output and input line that remembers every level written.
type Pin struct {
	Level   bool
	History []bool
}

// NewPin returns a pin at the given level with an empty history.
func NewPin(level bool) *Pin {
	return &Pin{Level: level}
}

// Set records and applies a level.
func (p *Pin) Set(high bool) {
	p.Level = high
	p.History = append(p.History, high)
}

// Get returns the current level.
func (p *Pin) Get() bool {
	return p.Level
}

// Delay records requested waits instead of sleeping.
type Delay struct {
	Calls []uint32
	// OnWait, when set, is called for every wait.
	OnWait func(ns uint32)
}

// WaitNanos records ns.
func (d *Delay) WaitNanos(ns uint32) {
	d.Calls = append(d.Calls, ns)
	if d.OnWait != nil {
		d.OnWait(ns)
	}
}

// Total returns the sum of all recorded waits.
func (d *Delay) Total() uint64 {
	var total uint64
	for _, ns := range d.Calls {
		total += uint64(ns)
	}
	return total
}
