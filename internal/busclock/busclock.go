// Package busclock provides the single monotonic millisecond source
// the rest of the bus-master logic measures time against: poll
// cadence, the two receive timeouts, the full-report period, and the
// guard delays around direction transitions all read it.
package busclock

import "time"

// Clock is the facade the scheduler and line driver depend on, so
// tests can run the state machine through simulated time without
// sleeping.
type Clock interface {
	NowMillis() uint64
	DelayMillis(n uint64)
}

// System is the real clock: monotonic from process start, Delay built
// on time.Sleep. There's no reason to busy-spin a CPU core on a hosted
// OS the way the original MCU firmware did; only the "one counter
// drives both Now and Delay" contract is preserved.
type System struct {
	start time.Time
}

// NewSystem returns a Clock whose NowMillis starts at 0 at the moment
// of this call.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) NowMillis() uint64 {
	return uint64(time.Since(s.start).Milliseconds())
}

func (s *System) DelayMillis(n uint64) {
	time.Sleep(time.Duration(n) * time.Millisecond)
}
