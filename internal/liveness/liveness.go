// Package liveness implements the per-device state machine of spec
// §4.7: active_count drives whether a device is considered alive, and
// every discover/poll outcome (success or failure) is fed through it.
package liveness

import "github.com/rs485bus/busmaster/internal/devtable"

// Reporter is the subset of the report emitter the state machine
// drives. Kept as an interface so the state machine can be tested
// without a real console link.
type Reporter interface {
	Active(dev int, d *devtable.Device)
	Inactive(dev int)
}

// DiscoverOutcome is what DiscoverSuccess needs to decide whether the
// device's reported attributes changed.
type DiscoverOutcome struct {
	PollIntervalS uint16
	Description   string
	Unit          string
}

// DiscoverSuccess applies a successful discover exchange to dev's
// record and reports ACTIVE when appropriate: always on a 0->active
// transition, or when any attribute changed, or when forceReport is
// set (full-report sweep).
func DiscoverSuccess(dev int, d *devtable.Device, out DiscoverOutcome, forceReport bool, r Reporter) {
	wasInactive := d.ActiveCount == 0
	if wasInactive {
		d.LastPollTimeMs = 0
	}
	d.ActiveCount = devtable.MaxFailRespond

	changed := out.PollIntervalS != d.PollIntervalS ||
		out.Description != d.Description ||
		out.Unit != d.Unit

	d.PollIntervalS = out.PollIntervalS
	d.Description = out.Description
	d.Unit = out.Unit

	if wasInactive || changed || forceReport {
		r.Active(dev, d)
	}
}

// PollSuccess applies a successful poll exchange. Polls never change
// the reported attribute set, so they never trigger an ACTIVE report
// on their own; they only refresh ActiveCount and LastPollTimeMs (the
// latter is the caller's job, since it also needs the exchange's
// start time — see scheduler).
func PollSuccess(d *devtable.Device) {
	d.ActiveCount = devtable.MaxFailRespond
}

// Failure applies a failed exchange (timeout or malformed/CRC-bad
// response) to dev's record. It implements the decay table of spec
// §4.7: an already-inactive device stays inactive (reporting INACTIVE
// again only if forceReport), while an active device's ActiveCount
// decrements, clearing its fields and reporting INACTIVE the moment
// it reaches zero.
func Failure(dev int, d *devtable.Device, forceReport bool, r Reporter) {
	if d.ActiveCount == 0 {
		if forceReport {
			r.Inactive(dev)
		}
		return
	}
	d.ActiveCount--
	if d.ActiveCount == 0 {
		d.Clear()
		r.Inactive(dev)
	}
}

// ShouldStampPollRetry reports whether a failed poll's timestamp
// should be updated (pushing the next attempt a full interval away).
// activeCountBeforeFailure is the device's ActiveCount as observed
// just before this failed exchange is applied via Failure. Above the
// half-tolerance threshold the scheduler instead leaves the timestamp
// untouched, causing an immediate back-to-back retry on the next
// outer sweep — fast bursts for the first few failures, falling back
// to scheduled retries afterward.
func ShouldStampPollRetry(activeCountBeforeFailure uint8) bool {
	return activeCountBeforeFailure <= devtable.MaxFailRespond/2
}
