// Package report formats and emits the three console-link message
// shapes (ACTIVE, INACTIVE, POLL) described in spec §4.9, plus the
// startup banner and the non-normative diagnostic lines from §6.
// Writes are fire-and-forget: a console write failure is swallowed,
// never propagated back into the scheduler's hot path.
package report

import (
	"fmt"
	"io"

	"github.com/rs485bus/busmaster/internal/devtable"
)

// Emitter writes report lines to a console link.
type Emitter struct {
	w io.Writer
}

// NewEmitter wraps w (typically the console UART) as a report
// destination.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

func (e *Emitter) writeLine(line string) {
	_, _ = io.WriteString(e.w, line)
}

// Init emits the one-time startup banner.
func (e *Emitter) Init() {
	e.writeLine("Master initialised.\n")
}

// Active emits "ACTIVE <dev>|<poll_interval>|<description>|<unit>\n".
func (e *Emitter) Active(dev int, d *devtable.Device) {
	e.writeLine(fmt.Sprintf("ACTIVE %d|%d|%s|%s\n", dev, d.PollIntervalS, d.Description, d.Unit))
}

// Inactive emits "INACTIVE <dev>\n".
func (e *Emitter) Inactive(dev int) {
	e.writeLine(fmt.Sprintf("INACTIVE %d\n", dev))
}

// Poll emits "POLL <dev> <value-text>\n", where valueText is the
// exact substring the frame codec parsed from the response.
func (e *Emitter) Poll(dev int, valueText string) {
	e.writeLine(fmt.Sprintf("POLL %d %s\n", dev, valueText))
}

// CRCMismatch emits the non-normative diagnostic line spec §6 and §7
// mention as useful to a test harness.
func (e *Emitter) CRCMismatch(dev int) {
	e.writeLine(fmt.Sprintf("CRC mismatch on device %d\n", dev))
}

// PollTimeout emits the non-normative poll-timeout diagnostic line.
func (e *Emitter) PollTimeout(dev int) {
	e.writeLine(fmt.Sprintf("Timeout from poll on device %d\n", dev))
}
