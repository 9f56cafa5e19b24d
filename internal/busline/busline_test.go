package busline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs485bus/busmaster/internal/busclock"
)

// fakeXcvr records direction transitions.
type fakeXcvr struct {
	history []string
}

func (f *fakeXcvr) AssertTX() { f.history = append(f.history, "tx") }
func (f *fakeXcvr) AssertRX() { f.history = append(f.history, "rx") }

// fakeUART simulates a byte stream. Each call to Available() that
// finds no queued byte advances the fake clock by one millisecond, so
// receive-timeout loops terminate deterministically without a real
// sleep.
type fakeUART struct {
	clock     *busclock.Fake
	rx        []byte
	written   []byte
	discarded bool
	drained   bool
	stepMs    uint64
}

func (f *fakeUART) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeUART) Drain() error {
	f.drained = true
	return nil
}

func (f *fakeUART) Available() (bool, error) {
	if len(f.rx) == 0 {
		f.clock.Advance(f.stepMs)
		return false, nil
	}
	return true, nil
}

func (f *fakeUART) ReadByte() (byte, error) {
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, nil
}

func (f *fakeUART) DiscardInput() error {
	f.discarded = true
	return nil
}

func TestSendWritesSyncPayloadAndTerminator(t *testing.T) {
	clock := &busclock.Fake{}
	uart := &fakeUART{clock: clock, stepMs: 1}
	xcvr := &fakeXcvr{}
	d := NewDriver(uart, xcvr, clock)

	err := d.Send([]byte("?09:D|abcd"))
	require.NoError(t, err)

	assert.Equal(t, []string{"tx", "rx"}, xcvr.history)
	assert.True(t, uart.drained)
	require.Len(t, uart.written, 1+len("?09:D|abcd")+2)
	assert.Equal(t, byte(0xff), uart.written[0])
	assert.Equal(t, "?09:D|abcd", string(uart.written[1:len(uart.written)-2]))
	assert.Equal(t, "\r\n", string(uart.written[len(uart.written)-2:]))
}

func TestRecvParsesFrameStrippingCRAndNUL(t *testing.T) {
	clock := &busclock.Fake{}
	uart := &fakeUART{
		clock:  clock,
		rx:     []byte("!09:D60|sen\x00sor|C|abcd\r\n"),
		stepMs: 1,
	}
	xcvr := &fakeXcvr{}
	d := NewDriver(uart, xcvr, clock)

	buf := make([]byte, 64)
	n, err := d.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "!09:D60|sensor|C|abcd", string(buf[:n]))
	assert.True(t, uart.discarded)
}

func TestRecvSkipsJunkBeforeStartOfFrame(t *testing.T) {
	clock := &busclock.Fake{}
	uart := &fakeUART{
		clock:  clock,
		rx:     []byte("\x00garbage!09:P1|abcd\n"),
		stepMs: 1,
	}
	d := NewDriver(uart, &fakeXcvr{}, clock)

	buf := make([]byte, 64)
	n, err := d.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "!09:P1|abcd", string(buf[:n]))
}

func TestRecvDropsOverflowWithoutStoppingReception(t *testing.T) {
	clock := &busclock.Fake{}
	// 3-byte buffer; frame body is longer, so middle bytes overflow.
	uart := &fakeUART{
		clock:  clock,
		rx:     []byte("!0ab\n"),
		stepMs: 1,
	}
	d := NewDriver(uart, &fakeXcvr{}, clock)

	buf := make([]byte, 3)
	n, err := d.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "!0a", string(buf[:n]))
}

func TestRecvTimesOutOnCharGap(t *testing.T) {
	clock := &busclock.Fake{}
	uart := &fakeUART{clock: clock, stepMs: 1} // never produces a byte
	d := NewDriver(uart, &fakeXcvr{}, clock)

	buf := make([]byte, 16)
	n, err := d.Recv(buf)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 0, n)
	assert.LessOrEqual(t, clock.NowMillis(), uint64(TimeoutResponseMs+10))
}

func TestRecvNeverSeeingBangTimesOutWithinResponseCeiling(t *testing.T) {
	clock := &busclock.Fake{}
	junk := make([]byte, 0, 5000)
	for i := 0; i < 5000; i++ {
		junk = append(junk, 'x')
	}
	uart := &fakeUART{clock: clock, rx: junk, stepMs: 1}
	d := NewDriver(uart, &fakeXcvr{}, clock)

	buf := make([]byte, 16)
	n, err := d.Recv(buf)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 0, n)
	assert.LessOrEqual(t, clock.NowMillis(), uint64(TimeoutResponseMs))
}
