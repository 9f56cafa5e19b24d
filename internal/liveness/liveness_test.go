package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs485bus/busmaster/internal/devtable"
)

type recordingReporter struct {
	activeCalls   []int
	inactiveCalls []int
}

func (r *recordingReporter) Active(dev int, d *devtable.Device) {
	r.activeCalls = append(r.activeCalls, dev)
}

func (r *recordingReporter) Inactive(dev int) {
	r.inactiveCalls = append(r.inactiveCalls, dev)
}

func TestDiscoverSuccessFromInactiveReportsActiveAndResetsPollTime(t *testing.T) {
	var d devtable.Device
	d.LastPollTimeMs = 999 // should be irrelevant; device is inactive
	r := &recordingReporter{}

	DiscoverSuccess(9, &d, DiscoverOutcome{PollIntervalS: 60, Description: "sensor", Unit: "C"}, false, r)

	assert.Equal(t, []int{9}, r.activeCalls)
	assert.Equal(t, uint8(devtable.MaxFailRespond), d.ActiveCount)
	assert.Equal(t, uint64(0), d.LastPollTimeMs)
	assert.Equal(t, uint16(60), d.PollIntervalS)
}

func TestDiscoverSuccessNoChangeNoForceDoesNotReport(t *testing.T) {
	d := devtable.Device{ActiveCount: devtable.MaxFailRespond, PollIntervalS: 60, Description: "sensor", Unit: "C"}
	r := &recordingReporter{}

	DiscoverSuccess(9, &d, DiscoverOutcome{PollIntervalS: 60, Description: "sensor", Unit: "C"}, false, r)

	assert.Empty(t, r.activeCalls)
}

func TestDiscoverSuccessFieldChangeReportsEvenWhenAlreadyActive(t *testing.T) {
	d := devtable.Device{ActiveCount: devtable.MaxFailRespond, PollIntervalS: 60, Description: "sensor", Unit: "C"}
	r := &recordingReporter{}

	DiscoverSuccess(9, &d, DiscoverOutcome{PollIntervalS: 60, Description: "sensor", Unit: "F"}, false, r)

	require.Len(t, r.activeCalls, 1)
	assert.Equal(t, "F", d.Unit)
}

func TestDiscoverSuccessForceReportAlwaysReports(t *testing.T) {
	d := devtable.Device{ActiveCount: devtable.MaxFailRespond, PollIntervalS: 60, Description: "sensor", Unit: "C"}
	r := &recordingReporter{}

	DiscoverSuccess(9, &d, DiscoverOutcome{PollIntervalS: 60, Description: "sensor", Unit: "C"}, true, r)

	assert.Equal(t, []int{9}, r.activeCalls)
}

func TestFailureDecaysAndClearsAtZero(t *testing.T) {
	d := devtable.Device{ActiveCount: 1, PollIntervalS: 60, Description: "sensor", Unit: "C", LastPollTimeMs: 1234}
	r := &recordingReporter{}

	Failure(9, &d, false, r)

	assert.Equal(t, uint8(0), d.ActiveCount)
	assert.Equal(t, "", d.Description)
	assert.Equal(t, "", d.Unit)
	assert.Equal(t, uint64(0), d.LastPollTimeMs)
	assert.Equal(t, []int{9}, r.inactiveCalls)
}

func TestFailureOnAlreadyInactiveDoesNotReportWithoutForce(t *testing.T) {
	var d devtable.Device
	r := &recordingReporter{}

	Failure(9, &d, false, r)

	assert.Empty(t, r.inactiveCalls)
}

func TestFailureOnAlreadyInactiveReportsWithForce(t *testing.T) {
	var d devtable.Device
	r := &recordingReporter{}

	Failure(9, &d, true, r)

	assert.Equal(t, []int{9}, r.inactiveCalls)
}

func TestFailureDecaySequenceTenTimesReachesInactive(t *testing.T) {
	d := devtable.Device{ActiveCount: devtable.MaxFailRespond}
	r := &recordingReporter{}

	for i := 0; i < devtable.MaxFailRespond-1; i++ {
		Failure(9, &d, false, r)
		assert.Empty(t, r.inactiveCalls)
	}
	Failure(9, &d, false, r)
	assert.Equal(t, []int{9}, r.inactiveCalls)
	assert.Equal(t, uint8(0), d.ActiveCount)
}

func TestShouldStampPollRetryFastBurstThenScheduled(t *testing.T) {
	half := uint8(devtable.MaxFailRespond / 2)
	assert.False(t, ShouldStampPollRetry(devtable.MaxFailRespond))
	assert.True(t, ShouldStampPollRetry(half))
	assert.True(t, ShouldStampPollRetry(1))
}

func TestActiveCountNeverExceedsMax(t *testing.T) {
	d := devtable.Device{ActiveCount: devtable.MaxFailRespond}
	r := &recordingReporter{}
	DiscoverSuccess(1, &d, DiscoverOutcome{}, false, r)
	assert.LessOrEqual(t, d.ActiveCount, uint8(devtable.MaxFailRespond))
}
