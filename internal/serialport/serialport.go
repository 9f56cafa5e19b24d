// Package serialport talks directly to a Linux tty device through
// termios2/ioctl, the way the bus master needs it: raw byte mode, a
// baud rate the kernel's fixed B-constant table does not cover, and
// (on ports that support it) the kernel's own RS-485 direction
// control. It also opens ptmx pairs, which the test harness uses to
// stand in for a physical bus without real hardware.
package serialport

import (
	"sync/atomic"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

type IFlag uint32
type OFlag uint32
type CFlag uint32
type LFlag uint32

const (
	IGNBRK = IFlag(0000001)
	BRKINT = IFlag(0000002)
	PARMRK = IFlag(0000010)
	ISTRIP = IFlag(0000040)
	INLCR  = IFlag(0000100)
	IGNCR  = IFlag(0000200)
	ICRNL  = IFlag(0000400)
	IXON   = IFlag(0002000)
)

const (
	OPOST = OFlag(0000001)
)

const (
	CS5    = CFlag(0000000)
	CS8    = CFlag(0000060)
	CSIZE  = CFlag(0000060)
	PARENB = CFlag(0000400)
	CREAD  = CFlag(0000200)
	CLOCAL = CFlag(0004000)
	CBAUD  = CFlag(0010017)
	// BOTHER selects the kernel's arbitrary-baud path: ISpeed/OSpeed
	// carry the literal rate instead of one of the fixed B* constants.
	BOTHER = CFlag(0010000)
)

const (
	ISIG   = LFlag(0000001)
	ICANON = LFlag(0000002)
	ECHO   = LFlag(0000010)
	ECHONL = LFlag(0000100)
	IEXTEN = LFlag(0100000)
)

// Termios2 mirrors the kernel's struct termios2, the superset of
// termios that carries explicit ISpeed/OSpeed fields needed for
// BOTHER custom baud rates.
type Termios2 struct {
	Iflag  IFlag
	Oflag  OFlag
	Cflag  CFlag
	Lflag  LFlag
	Line   byte
	Cc     [19]byte
	ISpeed uint32
	OSpeed uint32
}

// MakeRaw clears the flags that would otherwise apply line editing,
// signal generation, or character translation to bus traffic.
func (t *Termios2) MakeRaw() {
	t.Iflag &= ^(IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON)
	t.Oflag &= ^(OPOST)
	t.Lflag &= ^(ECHO | ECHONL | ICANON | ISIG | IEXTEN)
	t.Cflag &= ^(CSIZE | PARENB)
	t.Cflag |= CS8 | CREAD | CLOCAL
}

// SetCustomSpeed switches the port to BOTHER mode and programs both
// directions to the same rate.
func (t *Termios2) SetCustomSpeed(speed uint32) {
	t.SetCustomIOSpeed(speed, speed)
}

// SetCustomIOSpeed switches the port to BOTHER mode with independent
// input/output rates.
func (t *Termios2) SetCustomIOSpeed(iSpeed, oSpeed uint32) {
	t.Cflag &= ^CBAUD
	t.Cflag |= BOTHER
	t.ISpeed = iSpeed
	t.OSpeed = oSpeed
}

// RS485Flag holds the bits of struct serial_rs485.flags.
type RS485Flag uint32

const (
	RS485Enabled       = RS485Flag(1 << 0)
	RS485RTSOnSend     = RS485Flag(1 << 1)
	RS485RTSAfterSend  = RS485Flag(1 << 2)
	RS485RXDuringTx    = RS485Flag(1 << 4)
	RS485TerminateBus  = RS485Flag(1 << 5)
)

// RS485 mirrors struct serial_rs485, read and written via
// TIOCGRS485/TIOCSRS485. Ports that implement their RS-485 direction
// switch in hardware accept this instead of the GPIO transceiver
// control the bus master otherwise drives in software.
type RS485 struct {
	Flags              RS485Flag
	DelayRTSBeforeSend uint32
	DelayRTSAfterSend  uint32
	padding            [5]uint32
}

// Action selects when a termios change takes effect.
type Action int

const (
	TCSANOW Action = iota
	TCSADRAIN
	TCSAFLUSH
)

// Port is an open tty file descriptor plus the subset of termios2/
// ioctl operations this package exposes.
type Port struct {
	closed atomic.Bool
	fd     int
}

// Open opens path for non-blocking read/write without making it the
// controlling terminal (a controlling-terminal tty would otherwise
// intercept signal characters and hang up on session exit). It does
// not change the termios settings; MakeRaw puts the port in raw mode.
func Open(path string) (*Port, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, wrapErr("open "+path, err)
	}
	return &Port{fd: fd}, nil
}

func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.fd
}

func (p *Port) Read(buf []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := syscall.Read(p.fd, buf)
	return n, wrapErr("read", err)
}

func (p *Port) Write(buf []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := syscall.Write(p.fd, buf)
	return n, wrapErr("write", err)
}

// Drain blocks until the kernel reports the output queue empty, i.e.
// the last bit of the last byte has actually left the wire.
func (p *Port) Drain() error {
	return wrapErr("TCSBRK", ioctl.Ioctl(uintptr(p.fd), tcsbrk, 1))
}

func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	return wrapErr("close", syscall.Close(p.fd))
}

func (p *Port) GetAttr2() (*Termios2, error) {
	t := &Termios2{}
	err := ioctl.Ioctl(uintptr(p.fd), tcgets2, uintptr(unsafe.Pointer(t)))
	if err != nil {
		return nil, wrapErr("TCGETS2", err)
	}
	return t, nil
}

func (p *Port) SetAttr2(when Action, t *Termios2) error {
	return wrapErr("TCSETS2", ioctl.Ioctl(uintptr(p.fd), tcsets2+uintptr(when), uintptr(unsafe.Pointer(t))))
}

// MakeRaw reads the current termios2 state, clears the flags that
// don't belong on a wire protocol link, and writes it back.
func (p *Port) MakeRaw() error {
	t, err := p.GetAttr2()
	if err != nil {
		return err
	}
	t.MakeRaw()
	return p.SetAttr2(TCSANOW, t)
}

// GetRS485 returns the port's current kernel-level RS-485
// configuration. Ports without RS-485 support return a wrapped
// ENOTTY.
func (p *Port) GetRS485() (*RS485, error) {
	cfg := &RS485{}
	err := ioctl.Ioctl(uintptr(p.fd), tiocgrs485, uintptr(unsafe.Pointer(cfg)))
	if err != nil {
		return nil, wrapErr("TIOCGRS485", err)
	}
	return cfg, nil
}

// SetRS485 programs the port's kernel-level RS-485 direction control,
// an alternative to driving a GPIO transceiver line from userspace.
func (p *Port) SetRS485(cfg *RS485) error {
	return wrapErr("TIOCSRS485", ioctl.Ioctl(uintptr(p.fd), tiocsrs485, uintptr(unsafe.Pointer(cfg))))
}

// SetLockPT releases (locked=false) or sets (locked=true) the PTY
// lock on a ptmx master, required before the slave side can be
// opened.
func (p *Port) SetLockPT(locked bool) error {
	var v int32
	if locked {
		v = 1
	}
	return wrapErr("TIOCSPTLCK", ioctl.Ioctl(uintptr(p.fd), tiocsptlck, uintptr(unsafe.Pointer(&v))))
}

// GetPTPeer opens the slave end of a ptmx master directly via
// TIOCGPTPEER, avoiding a race against /dev/pts/N path lookups.
func (p *Port) GetPTPeer(flags int) (*Port, error) {
	r1, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(p.fd), tiocgptpeer, uintptr(flags))
	if errno != 0 {
		return nil, wrapErr("TIOCGPTPEER", errno)
	}
	return &Port{fd: int(r1)}, nil
}
