// Package scheduler runs the cooperative discover/poll loop of spec
// §4.8: a full poll sweep in ascending id order, one discover probe
// advancing a round-robin cursor, the 5-minute full-report cadence,
// and a console-nudge input that can force a full report early.
//
// The loop is single-threaded and run-to-completion by construction —
// Step does not spawn goroutines and does not return until the
// current outer iteration is done — so the device table never needs
// locking, matching spec §5's "single execution context on the hot
// path" invariant.
package scheduler

import (
	"errors"

	"github.com/rs485bus/busmaster/internal/busclock"
	"github.com/rs485bus/busmaster/internal/busline"
	"github.com/rs485bus/busmaster/internal/devtable"
	"github.com/rs485bus/busmaster/internal/frame"
	"github.com/rs485bus/busmaster/internal/liveness"
)

// fullReportPeriodMs is how often, absent any change, every slot's
// ACTIVE/INACTIVE status is re-emitted regardless of change.
const fullReportPeriodMs = 5 * 60 * 1000

// Exchanger issues the two request/response exchanges over the bus.
type Exchanger interface {
	Discover(dev byte) (frame.DiscoverReply, error)
	Poll(dev byte) (frame.PollReply, error)
}

// Reporter is the liveness.Reporter plus the poll-result and
// diagnostic lines the scheduler itself is responsible for emitting.
type Reporter interface {
	liveness.Reporter
	Poll(dev int, valueText string)
	CRCMismatch(dev int)
	PollTimeout(dev int)
}

// ConsoleReader lets the scheduler drain whatever bytes have arrived
// on the console link without blocking, looking only for a '\n' that
// requests an early full report.
type ConsoleReader interface {
	Available() (bool, error)
	ReadByte() (byte, error)
}

// Scheduler owns the device table and the two cross-sweep cursors
// (discover index, full-report timer/flag) spec §3 and §9 call out as
// the process-wide state.
type Scheduler struct {
	table    *devtable.Table
	clock    busclock.Clock
	exchange Exchanger
	report   Reporter
	console  ConsoleReader

	discoverIdx          int
	doFullReport         bool
	nextFullReportTimeMs uint64
}

// New builds a Scheduler. doFullReport starts true so the very first
// sweep emits every slot's status, per spec §4.8.
func New(table *devtable.Table, clock busclock.Clock, exchange Exchanger, reporter Reporter, console ConsoleReader) *Scheduler {
	return &Scheduler{
		table:        table,
		clock:        clock,
		exchange:     exchange,
		report:       reporter,
		console:      console,
		doFullReport: true,
	}
}

// Step runs exactly one outer iteration: the full poll sweep, one
// discover probe, the full-report cadence update, and the console
// nudge drain.
func (s *Scheduler) Step() {
	forceReport := s.doFullReport

	s.pollSweep()
	s.discoverProbe(forceReport)
	s.advanceFullReportCadence()
	s.drainConsoleNudge()
}

func (s *Scheduler) pollSweep() {
	now := s.clock.NowMillis()
	for id := 0; id < s.table.Len(); id++ {
		d := s.table.Get(id)
		if !duePoll(d, now) {
			continue
		}
		s.doPoll(id, d)
	}
}

func duePoll(d *devtable.Device, now uint64) bool {
	if !d.Active() {
		return false
	}
	if d.LastPollTimeMs == 0 {
		return true
	}
	return d.LastPollTimeMs+uint64(d.PollIntervalS)*1000 <= now
}

func (s *Scheduler) doPoll(id int, d *devtable.Device) {
	start := s.clock.NowMillis()
	activeCountBefore := d.ActiveCount

	reply, err := s.exchange.Poll(byte(id))
	if err != nil {
		if errors.Is(err, busline.ErrNoResponse) {
			s.report.PollTimeout(id)
		} else if errors.Is(err, frame.ErrCRCMismatch) {
			s.report.CRCMismatch(id)
		}
		if liveness.ShouldStampPollRetry(activeCountBefore) {
			d.LastPollTimeMs = start
		}
		liveness.Failure(id, d, false, s.report)
		return
	}

	liveness.PollSuccess(d)
	s.report.Poll(id, reply.ValueText)
	d.LastPollTimeMs = start
}

func (s *Scheduler) discoverProbe(forceReport bool) {
	id := s.discoverIdx
	d := s.table.Get(id)

	reply, err := s.exchange.Discover(byte(id))
	if err != nil {
		if errors.Is(err, frame.ErrCRCMismatch) {
			s.report.CRCMismatch(id)
		}
		liveness.Failure(id, d, forceReport, s.report)
	} else {
		liveness.DiscoverSuccess(id, d, liveness.DiscoverOutcome{
			PollIntervalS: reply.PollIntervalS,
			Description:   reply.Description,
			Unit:          reply.Unit,
		}, forceReport, s.report)
	}

	s.discoverIdx++
	if s.discoverIdx >= s.table.Len() {
		s.discoverIdx = 0
	}
}

func (s *Scheduler) advanceFullReportCadence() {
	if s.discoverIdx != 0 {
		return
	}
	if s.doFullReport {
		s.nextFullReportTimeMs = s.clock.NowMillis() + fullReportPeriodMs
		s.doFullReport = false
	} else if s.clock.NowMillis() >= s.nextFullReportTimeMs {
		s.doFullReport = true
	}
}

func (s *Scheduler) drainConsoleNudge() {
	if s.console == nil {
		return
	}
	for {
		avail, err := s.console.Available()
		if err != nil || !avail {
			return
		}
		c, err := s.console.ReadByte()
		if err != nil {
			return
		}
		if c == '\n' {
			s.nextFullReportTimeMs = s.clock.NowMillis()
		}
	}
}
