package hw

import (
	"fmt"
	"sync"

	"github.com/muurk/poolctl/internal/logging"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

const consumer = "poolctl"

// CdevBank requests lines from a GPIO character device
type CdevBank struct {
	chip  *gpiocdev.Chip
	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

// OpenCdev opens the named chip, for example "gpiochip0"
func OpenCdev(chipName string) (*CdevBank, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", chipName, err)
	}

	logging.Info("GPIO chip opened",
		zap.String("chip", chipName),
		zap.Int("lines", chip.Lines()),
	)

	return &CdevBank{chip: chip, lines: make(map[int]*gpiocdev.Line)}, nil
}

// Output requests pin as an output driven low
func (b *CdevBank) Output(pin int) (Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if line, ok := b.lines[pin]; ok {
		return cdevLine{line: line}, nil
	}

	line, err := b.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", pin, err)
	}
	b.lines[pin] = line
	return cdevLine{line: line}, nil
}

// Close releases every requested line and the chip
func (b *CdevBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for pin, line := range b.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", pin, err))
		}
	}
	b.lines = make(map[int]*gpiocdev.Line)

	if err := b.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

type cdevLine struct {
	line *gpiocdev.Line
}

func (c cdevLine) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return c.line.SetValue(v)
}
