package hw

import (
	"fmt"

	"github.com/muurk/poolctl/internal/logging"
	rpio "github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"
)

// RpioBank drives BCM pins through /dev/gpiomem. Older Raspberry Pi kernels
// without a usable character device fall back to this backend.
type RpioBank struct{}

// OpenRpio maps the GPIO registers
func OpenRpio() (*RpioBank, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("map gpio registers: %w", err)
	}
	logging.Info("GPIO registers mapped", zap.String("driver", "rpio"))
	return &RpioBank{}, nil
}

// Output configures pin as an output driven low
func (RpioBank) Output(pin int) (Output, error) {
	if pin < 0 || pin > 53 {
		return nil, fmt.Errorf("bcm pin out of range: %d", pin)
	}
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	return rpioPin{pin: p}, nil
}

// Close unmaps the registers
func (RpioBank) Close() error {
	return rpio.Close()
}

type rpioPin struct {
	pin rpio.Pin
}

func (r rpioPin) Set(high bool) error {
	if high {
		r.pin.High()
	} else {
		r.pin.Low()
	}
	return nil
}
