// Package gpioline drives RS-485 direction control and an optional
// activity LED over Linux GPIO character devices, backing
// busline.Transceiver and busline.ActivityIndicator without any
// sysfs or bit-banged parallel port access.
package gpioline

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Transceiver drives a driver-enable and a receiver-enable output
// line together: both high to transmit, both low to receive. Most
// boards tie DE and RE to the same signal inverted once in hardware,
// but some RS-485 transceivers expose them separately, so both are
// requested and driven in lockstep here.
type Transceiver struct {
	de *gpiocdev.Line
	re *gpiocdev.Line
}

// NewTransceiver requests the DE and RE lines on the given gpiochip
// as outputs, starting in receive mode.
func NewTransceiver(chip string, deOffset, reOffset int) (*Transceiver, error) {
	de, err := gpiocdev.RequestLine(chip, deOffset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request DE line %s:%d: %w", chip, deOffset, err)
	}
	re, err := gpiocdev.RequestLine(chip, reOffset, gpiocdev.AsOutput(0))
	if err != nil {
		de.Close()
		return nil, fmt.Errorf("request RE line %s:%d: %w", chip, reOffset, err)
	}
	return &Transceiver{de: de, re: re}, nil
}

// AssertTX drives both lines high: the transceiver drives the bus and
// stops listening to it.
func (t *Transceiver) AssertTX() {
	t.de.SetValue(1)
	t.re.SetValue(1)
}

// AssertRX drives both lines low: the transceiver releases the bus
// and listens.
func (t *Transceiver) AssertRX() {
	t.de.SetValue(0)
	t.re.SetValue(0)
}

// Close releases both GPIO lines.
func (t *Transceiver) Close() error {
	deErr := t.de.Close()
	reErr := t.re.Close()
	if deErr != nil {
		return deErr
	}
	return reErr
}

// LED drives a single GPIO output line as an ActivityIndicator.
type LED struct {
	line *gpiocdev.Line
}

// NewLED requests the given line as an output, starting off.
func NewLED(chip string, offset int) (*LED, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request LED line %s:%d: %w", chip, offset, err)
	}
	return &LED{line: line}, nil
}

func (l *LED) On()  { l.line.SetValue(1) }
func (l *LED) Off() { l.line.SetValue(0) }

func (l *LED) Close() error { return l.line.Close() }
