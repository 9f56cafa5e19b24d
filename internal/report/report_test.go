package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rs485bus/busmaster/internal/devtable"
)

func TestActiveLineFormat(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	d := &devtable.Device{PollIntervalS: 60, Description: "sensor", Unit: "C"}
	e.Active(9, d)
	assert.Equal(t, "ACTIVE 9|60|sensor|C\n", buf.String())
}

func TestInactiveLineFormat(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	e.Inactive(9)
	assert.Equal(t, "INACTIVE 9\n", buf.String())
}

func TestPollLineFormat(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	e.Poll(9, "23.5")
	assert.Equal(t, "POLL 9 23.5\n", buf.String())
}

func TestInitBanner(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	e.Init()
	assert.Equal(t, "Master initialised.\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, bytes.ErrTooLarge
}

func TestWritesAreFireAndForget(t *testing.T) {
	e := NewEmitter(failingWriter{})
	assert.NotPanics(t, func() {
		e.Active(1, &devtable.Device{})
		e.Inactive(1)
		e.Poll(1, "1")
	})
}
