// Package busuart adapts a serialport.Port into the byte-level
// busline.UART interface the bus driver needs: a non-blocking
// Available() check, a blocking Drain(), and an RX FIFO flush.
package busuart

import (
	"errors"
	"syscall"

	"github.com/daedaluz/fdev/poll"

	"github.com/rs485bus/busmaster/internal/serialport"
)

// UART wraps an open serial port opened in raw, non-blocking mode.
type UART struct {
	port *serialport.Port
}

// New wraps an already-configured port. Callers are expected to have
// put it in raw mode and programmed the bus baud rate first.
func New(port *serialport.Port) *UART {
	return &UART{port: port}
}

func (u *UART) Write(p []byte) (int, error) {
	return u.port.Write(p)
}

// Drain blocks until the kernel reports the tty's output queue
// empty, i.e. every byte has actually left the wire, not just been
// copied into the driver's buffer. That distinction matters here: the
// direction line can't flip back to receive until the last bit has
// gone out.
func (u *UART) Drain() error {
	return u.port.Drain()
}

// Available reports whether a byte can be read without blocking. A
// zero timeout turns poll.WaitInput into a plain readiness check; any
// error from it (most commonly a timeout) means "not yet".
func (u *UART) Available() (bool, error) {
	if err := poll.WaitInput(u.port.Fd(), 0); err != nil {
		return false, nil
	}
	return true, nil
}

// ReadByte reads exactly one byte. Callers only call this after
// Available reports true, so this should not block; if the kernel
// disagrees (EAGAIN on the non-blocking fd) it retries instead of
// surfacing a spurious error.
func (u *UART) ReadByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := u.port.Read(buf[:])
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}
			return 0, err
		}
		if n == 1 {
			return buf[0], nil
		}
	}
}

// DiscardInput drops any bytes already queued in the RX FIFO before a
// new exchange starts, so a stray byte from a previous, timed-out
// exchange can't be mistaken for part of the next response.
func (u *UART) DiscardInput() error {
	for {
		avail, err := u.Available()
		if err != nil {
			return err
		}
		if !avail {
			return nil
		}
		if _, err := u.ReadByte(); err != nil {
			return err
		}
	}
}
