// Package busline implements the half-duplex request/response
// exchange over the RS-485 line: direction control, guard delays, the
// 0xff sync byte, and the two receive timeouts. It knows nothing about
// frame structure or CRCs — that's the frame package's job — it only
// moves bytes across the wire reliably.
package busline

import (
	"errors"
	"fmt"

	"github.com/rs485bus/busmaster/internal/busclock"
)

const (
	// TimeoutCharMs is the maximum idle time between two consecutive
	// received bytes before giving up on a response.
	TimeoutCharMs = 10
	// TimeoutResponseMs is the overall ceiling on a single receive
	// attempt, regardless of how many bytes arrive.
	TimeoutResponseMs = 2000
	// PostReceiveGuardMs is slept after a successful receive to give
	// the slave time to release its line driver before any future
	// transmit. Not derived from baud rate; just a fixed constant per
	// the open question in the spec.
	PostReceiveGuardMs = 2
	// syncByte prefixes every master transmission so that slave UART
	// start-bit detectors can't mis-frame on the first real byte.
	syncByte = 0xff
)

// ErrNoResponse is returned by Recv when neither a start-of-frame nor
// any terminated frame arrived before a timeout. It is not itself an
// error worth logging; it's the expected shape of "device absent."
var ErrNoResponse = errors.New("no response")

// Transceiver drives the DE/RE pair on the RS-485 transceiver. Tx and
// Rx are asserted together: both high for transmit, both low for
// receive, as required by spec.
type Transceiver interface {
	AssertTX()
	AssertRX()
}

// UART is the byte-level interface to the bus serial port. Available
// reports whether a byte can be read without blocking, which the
// receive loop polls alongside the clock to implement the two
// timeouts without needing OS-level read deadlines.
type UART interface {
	Write(p []byte) (int, error)
	Drain() error // block until the shift register has emptied
	Available() (bool, error)
	ReadByte() (byte, error)
	DiscardInput() error // drop any bytes already queued in the RX FIFO
}

// ActivityIndicator is an optional hook for a visual "bus busy"
// signal (an LED, in the original firmware). NewDriver installs a
// no-op indicator unless WithActivityIndicator supplies one.
type ActivityIndicator interface {
	On()
	Off()
}

type noopIndicator struct{}

func (noopIndicator) On()  {}
func (noopIndicator) Off() {}

// Driver ties a UART and a Transceiver together into the guarded
// half-duplex exchange described in spec §4.4. At most one exchange
// is ever in flight: Send and Recv are meant to be called back to
// back from a single goroutine.
type Driver struct {
	uart      UART
	xcvr      Transceiver
	clock     busclock.Clock
	indicator ActivityIndicator
	guardMs   uint64
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithActivityIndicator wires an LED-style busy indicator around
// every transmission.
func WithActivityIndicator(ind ActivityIndicator) Option {
	return func(d *Driver) { d.indicator = ind }
}

// WithGuardMillis overrides the default pre/post direction-transition
// guard delay (a few CPU cycles on the original MCU; a conservative
// fixed millisecond value is used here since there's no cycle-count
// API on a hosted OS).
func WithGuardMillis(ms uint64) Option {
	return func(d *Driver) { d.guardMs = ms }
}

const defaultGuardMs = 1

// NewDriver builds a Driver over the given UART and transceiver.
func NewDriver(uart UART, xcvr Transceiver, clock busclock.Clock, opts ...Option) *Driver {
	d := &Driver{
		uart:      uart,
		xcvr:      xcvr,
		clock:     clock,
		indicator: noopIndicator{},
		guardMs:   defaultGuardMs,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send transmits payload as a framed request: sync byte, payload
// bytes verbatim (payload already includes the trailing hex CRC, per
// frame.BuildRequest), then CRLF. It blocks until the UART reports
// its shift register drained, then flips back to receive.
func (d *Driver) Send(payload []byte) error {
	d.indicator.On()
	defer d.indicator.Off()

	d.xcvr.AssertTX()
	d.clock.DelayMillis(d.guardMs)

	if _, err := d.uart.Write([]byte{syncByte}); err != nil {
		d.xcvr.AssertRX()
		return fmt.Errorf("write sync byte: %w", err)
	}
	if _, err := d.uart.Write(payload); err != nil {
		d.xcvr.AssertRX()
		return fmt.Errorf("write payload: %w", err)
	}
	if _, err := d.uart.Write([]byte{'\r', '\n'}); err != nil {
		d.xcvr.AssertRX()
		return fmt.Errorf("write terminator: %w", err)
	}
	if err := d.uart.Drain(); err != nil {
		d.xcvr.AssertRX()
		return fmt.Errorf("drain: %w", err)
	}

	d.clock.DelayMillis(d.guardMs)
	d.xcvr.AssertRX()
	return nil
}

// Recv waits for one framed response, subject to both the per-byte
// and overall timeouts, and returns the frame with framing stripped
// (no leading junk before '!', no trailing '\n'). It returns
// ErrNoResponse — not an error the caller needs to log — when nothing
// usable arrived in time.
func (d *Driver) Recv(buf []byte) (int, error) {
	if err := d.uart.DiscardInput(); err != nil {
		return 0, fmt.Errorf("discard stale input: %w", err)
	}

	d.clock.DelayMillis(d.guardMs)
	d.xcvr.AssertRX()
	d.clock.DelayMillis(d.guardMs)

	start := d.clock.NowMillis()
	lastChar := start
	n := 0

	for {
		avail, err := d.uart.Available()
		if err != nil {
			return 0, fmt.Errorf("poll for input: %w", err)
		}
		if !avail {
			now := d.clock.NowMillis()
			if now-lastChar >= TimeoutCharMs || now-start >= TimeoutResponseMs {
				return 0, ErrNoResponse
			}
			continue
		}

		c, err := d.uart.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("read byte: %w", err)
		}
		lastChar = d.clock.NowMillis()

		if n == 0 && c != '!' {
			continue
		}
		if c == '\n' {
			break
		}
		if c == '\r' || c == 0 {
			continue
		}
		if n >= len(buf) {
			// Overflow: drop the byte silently without stopping
			// reception, per spec. The frame will likely then fail
			// structure or CRC checks, which is fine — the overflow
			// itself is not fatal.
			continue
		}
		buf[n] = c
		n++
	}

	d.clock.DelayMillis(PostReceiveGuardMs)
	return n, nil
}
