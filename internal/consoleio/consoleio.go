// Package consoleio adapts a plain io.Reader — the upstream console
// link — into the byte-at-a-time, non-blocking shape the scheduler's
// ConsoleReader expects, without
// spinning up a reader goroutine: the underlying port is opened with
// a short read timeout, so a Read call that finds nothing pending
// returns promptly instead of blocking the scheduler loop.
package consoleio

import "io"

// Console buffers at most one byte read ahead of where the scheduler
// has consumed, since Available must answer without consuming.
type Console struct {
	r       io.Reader
	pending byte
	has     bool
}

// New wraps r, which should have a short read timeout configured (see
// tarm/serial's Config.ReadTimeout) so Read returns (0, nil) rather
// than blocking when nothing has arrived.
func New(r io.Reader) *Console {
	return &Console{r: r}
}

func (c *Console) Available() (bool, error) {
	if c.has {
		return true, nil
	}
	var buf [1]byte
	n, err := c.r.Read(buf[:])
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	c.pending = buf[0]
	c.has = true
	return true, nil
}

func (c *Console) ReadByte() (byte, error) {
	if !c.has {
		avail, err := c.Available()
		if err != nil {
			return 0, err
		}
		if !avail {
			return 0, io.EOF
		}
	}
	c.has = false
	return c.pending, nil
}
