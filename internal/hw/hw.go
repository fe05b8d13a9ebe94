package hw

import "io"

// SentinelCelsius is reported by a disconnected temperature probe
const SentinelCelsius = -127.0

// Output is a single digital output line
type Output interface {
	Set(high bool) error
}

// AnalogInput is a single ADC channel
type AnalogInput interface {
	Read() (int, error)
}

// Thermometer reads a temperature probe
type Thermometer interface {
	Celsius() (float64, error)
}

// Bank hands out output lines by pin number
type Bank interface {
	io.Closer
	Output(pin int) (Output, error)
}

type inverted struct {
	out Output
}

func (i inverted) Set(high bool) error {
	return i.out.Set(!high)
}

// Invert returns an Output driving the opposite level, for active-low relay boards
func Invert(o Output) Output {
	return inverted{out: o}
}
