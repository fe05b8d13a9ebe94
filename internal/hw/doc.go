// Package hw abstracts the pins and sensors of the controller board.
//
// Actuators only see Output (a digital line) and AnalogInput (a raw ADC
// count). Concrete backends:
//
//   - CdevBank: Linux GPIO character device via go-gpiocdev
//   - RpioBank: memory-mapped BCM2835 registers via go-rpio
//   - SysfsADC: an IIO channel read from sysfs
//   - W1Thermometer: a 1-Wire temperature probe read from sysfs
//
// The Sim types model the same hardware in memory for tests and the
// --simulate mode of the daemon.
package hw
