package serialport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenBusPTYLoopback(t *testing.T) {
	master, slave, err := OpenBusPTY()
	require.NoError(t, err)
	defer master.Close()
	defer slave.Close()

	n, err := master.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	read := 0
	for read < len(buf) {
		n, err := slave.Read(buf[read:])
		if err != nil {
			continue
		}
		read += n
	}
	require.Equal(t, "hello", string(buf))
}

func TestMakeRawClearsCookedModeFlags(t *testing.T) {
	var t2 Termios2
	t2.Cflag = PARENB | CS5
	t2.Lflag = ICANON | ECHO | ISIG
	t2.MakeRaw()

	require.Equal(t, CFlag(0), t2.Cflag&PARENB)
	require.Equal(t, CS8, t2.Cflag&CSIZE)
	require.Equal(t, LFlag(0), t2.Lflag&(ICANON|ECHO|ISIG))
}

func TestSetCustomSpeedSelectsBother(t *testing.T) {
	var t2 Termios2
	t2.SetCustomSpeed(115200)

	require.Equal(t, BOTHER, t2.Cflag&CBAUD)
	require.Equal(t, uint32(115200), t2.ISpeed)
	require.Equal(t, uint32(115200), t2.OSpeed)
}
