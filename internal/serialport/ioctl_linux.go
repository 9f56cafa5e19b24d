//go:build linux

package serialport

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

// ioctl request numbers used by this package. Only the subset the bus
// master actually needs (raw-mode termios2, RS-485 direction config,
// and the ptmx pairing calls the test harness uses) is kept; the
// teacher library exposes the full termios/line-discipline/modem-line
// surface, most of which no RS-485 half-duplex master ever touches.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tiocgrs485 = uintptr(0x542E)
	tiocsrs485 = uintptr(0x542F)

	tiocsptlck  = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
	tiocgptpeer = ioctl.IO('T', 0x41)

	// tcsbrk with a nonzero argument behaves as tcdrain(3): block
	// until the output queue has been fully transmitted.
	tcsbrk = uintptr(0x5409)
)
