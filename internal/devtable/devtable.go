// Package devtable holds the fixed, statically-sized table of slave
// device records the scheduler and liveness state machine operate on.
// It is never resized or freed: every slot for ids [0,128) exists from
// the moment a Table is constructed (or zero-valued) until the process
// exits.
package devtable

const (
	// MaxDevice is the number of device-id slots on the bus.
	MaxDevice = 128
	// MaxDescription is the maximum length, in bytes, of a device's
	// description field.
	MaxDescription = 140
	// MaxUnit is the maximum length, in bytes, of a device's unit
	// field. The original C source enforced MaxDescription here by
	// mistake; this port uses the intended bound.
	MaxUnit = 20
	// MaxFailRespond is both the "fully alive" value of ActiveCount
	// and the number of consecutive failures a device tolerates
	// before being declared inactive.
	MaxFailRespond = 10
)

// Device is one slave's liveness and last-known attributes. The zero
// value is a never-seen, inactive device, which is exactly the state
// every slot starts in at boot.
type Device struct {
	// LastPollTimeMs is the monotonic start time of the most recent
	// poll that moved the schedule forward (a successful poll, or a
	// failed one once the fast-retry window is over), or 0 if there
	// has been none since the device became active (which also means
	// "poll it immediately").
	LastPollTimeMs uint64
	// PollIntervalS is the cadence, in seconds, most recently
	// reported by the device's discover response.
	PollIntervalS uint16
	// ActiveCount is 0 for an inactive device, or the number of
	// consecutive failures still tolerated (up to MaxFailRespond)
	// for an active one.
	ActiveCount uint8
	Description string
	Unit        string
}

// Active reports whether the device is currently considered alive.
func (d *Device) Active() bool {
	return d.ActiveCount > 0
}

// Table is the fixed [0,128) array of device records, addressed by
// id. The zero value is ready to use: all 128 slots start inactive
// with every field zeroed, matching the static allocation of the
// original firmware.
type Table struct {
	devices [MaxDevice]Device
}

// Get returns a pointer to the record for id, which must be in
// [0,128). Callers mask ids with 0x7f before indexing, per the wire
// protocol's 7-bit id field.
func (t *Table) Get(id int) *Device {
	return &t.devices[id]
}

// Len is the number of slots in the table.
func (t *Table) Len() int {
	return len(t.devices)
}

// Clear zeroes the poll timestamp, poll interval, description and
// unit. This is the transition every active->inactive decay passes
// through; ActiveCount is left untouched, since the liveness state
// machine owns it.
func (d *Device) Clear() {
	d.LastPollTimeMs = 0
	d.PollIntervalS = 0
	d.Description = ""
	d.Unit = ""
}
