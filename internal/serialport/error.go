package serialport

import "syscall"

// Error wraps a low-level syscall/ioctl failure with the operation
// that triggered it, so callers get something more useful than a bare
// errno while still being able to errors.Unwrap/errors.Is through to
// it.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return e.msg + ": " + e.err.Error()
		}
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return Error{msg: msg, err: err}
}

// ErrClosed is returned by Port methods once Close has been called.
var ErrClosed = Error{"port already closed", syscall.EBADF}
