package hw

import "sync"

// SimOutput records every level written to it
type SimOutput struct {
	mu      sync.Mutex
	level   bool
	history []bool
	Err     error
}

// Set records high
func (s *SimOutput) Set(high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.level = high
	s.history = append(s.history, high)
	return nil
}

// Level returns the last level written
func (s *SimOutput) Level() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// History returns every level written, oldest first
func (s *SimOutput) History() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.history...)
}

// SimBank hands out SimOutputs
type SimBank struct {
	mu   sync.Mutex
	pins map[int]*SimOutput
}

// NewSimBank returns an empty bank
func NewSimBank() *SimBank {
	return &SimBank{pins: make(map[int]*SimOutput)}
}

// Output returns the simulated line for pin
func (b *SimBank) Output(pin int) (Output, error) {
	return b.Pin(pin), nil
}

// Pin returns the concrete simulated line for pin
func (b *SimBank) Pin(pin int) *SimOutput {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, ok := b.pins[pin]
	if !ok {
		out = &SimOutput{}
		b.pins[pin] = out
	}
	return out
}

// Close is a no-op
func (b *SimBank) Close() error { return nil }

// SimAnalog returns a settable reading
type SimAnalog struct {
	mu    sync.Mutex
	value int
	err   error
}

// NewSimAnalog returns an input reading value
func NewSimAnalog(value int) *SimAnalog {
	return &SimAnalog{value: value}
}

// Read returns the current value
func (s *SimAnalog) Read() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err
}

// Set changes the reading
func (s *SimAnalog) Set(value int) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

// Fail makes subsequent reads return err
func (s *SimAnalog) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SimThermometer returns a settable temperature
type SimThermometer struct {
	mu    sync.Mutex
	value float64
	err   error
}

// NewSimThermometer returns a probe reading celsius
func NewSimThermometer(celsius float64) *SimThermometer {
	return &SimThermometer{value: celsius}
}

// Celsius returns the current reading
func (s *SimThermometer) Celsius() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err
}

// Set changes the reading
func (s *SimThermometer) Set(celsius float64) {
	s.mu.Lock()
	s.value = celsius
	s.mu.Unlock()
}

// Fail makes subsequent reads return err
func (s *SimThermometer) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SimLatchingRelay models a bistable relay with a position sensor. Coil i
// moves the contact to positions[i] on a rising edge; with a single toggle
// coil every rising edge swaps the two positions.
type SimLatchingRelay struct {
	mu        sync.Mutex
	positions [2]int
	current   int
	powered   int
	stuck     bool
	coils     [2]bool
	pulses    int

	// SensorHigh and SensorLow are the raw counts reported for the
	// powered and unpowered contact
	SensorHigh int
	SensorLow  int
}

// NewSimLatchingRelay returns a relay switching between positions a and b,
// currently at initial. The sensor reads high while the contact is at powered.
func NewSimLatchingRelay(a, b, initial, powered int) *SimLatchingRelay {
	return &SimLatchingRelay{
		positions:  [2]int{a, b},
		current:    initial,
		powered:    powered,
		SensorHigh: 3300,
		SensorLow:  100,
	}
}

// Coil returns the output driving coil i (0 or 1)
func (r *SimLatchingRelay) Coil(i int) Output {
	return relayCoil{relay: r, index: i}
}

// ToggleCoil returns a single output that swaps positions on every pulse
func (r *SimLatchingRelay) ToggleCoil() Output {
	return relayCoil{relay: r, index: -1}
}

// Sensor returns the contact position sensor
func (r *SimLatchingRelay) Sensor() AnalogInput {
	return relaySensor{relay: r}
}

// Position returns the contact position
func (r *SimLatchingRelay) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Pulses returns how many rising edges reached a coil
func (r *SimLatchingRelay) Pulses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pulses
}

// Stick makes the contact ignore coil pulses
func (r *SimLatchingRelay) Stick(stuck bool) {
	r.mu.Lock()
	r.stuck = stuck
	r.mu.Unlock()
}

func (r *SimLatchingRelay) drive(index int, high bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := index
	if slot < 0 {
		slot = 0
	}
	rising := high && !r.coils[slot]
	r.coils[slot] = high
	if !rising {
		return
	}

	r.pulses++
	if r.stuck {
		return
	}
	if index < 0 {
		if r.current == r.positions[0] {
			r.current = r.positions[1]
		} else {
			r.current = r.positions[0]
		}
		return
	}
	r.current = r.positions[index]
}

type relayCoil struct {
	relay *SimLatchingRelay
	index int
}

func (c relayCoil) Set(high bool) error {
	c.relay.drive(c.index, high)
	return nil
}

type relaySensor struct {
	relay *SimLatchingRelay
}

func (s relaySensor) Read() (int, error) {
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	if s.relay.current == s.relay.powered {
		return s.relay.SensorHigh, nil
	}
	return s.relay.SensorLow, nil
}
