package hw

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SysfsADC reads a raw IIO channel such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw
type SysfsADC struct {
	Path string
}

// Read returns the raw count
func (s SysfsADC) Read() (int, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse adc value %q: %w", strings.TrimSpace(string(data)), err)
	}
	return v, nil
}

// W1Thermometer reads a DS18B20 through the w1_therm driver. Path may name
// either the "temperature" attribute (millidegrees) or the legacy "w1_slave"
// file ("... YES\n... t=23125").
type W1Thermometer struct {
	Path string
}

// Celsius returns the probe reading. A missing probe reads as SentinelCelsius.
func (w W1Thermometer) Celsius() (float64, error) {
	data, err := os.ReadFile(w.Path)
	if os.IsNotExist(err) {
		return SentinelCelsius, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read probe: %w", err)
	}
	return parseW1(string(data))
}

func parseW1(text string) (float64, error) {
	text = strings.TrimSpace(text)

	raw := text
	if i := strings.LastIndex(text, "t="); i >= 0 {
		if !strings.Contains(text, "YES") {
			// CRC failure
			return SentinelCelsius, nil
		}
		raw = text[i+2:]
	}

	milli, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse probe value %q: %w", raw, err)
	}
	return float64(milli) / 1000, nil
}
