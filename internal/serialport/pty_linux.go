//go:build linux

package serialport

// OpenBusPTY opens a ptmx/pts pair and puts the slave end in raw
// mode, standing in for a physical RS-485 line when exercising the
// scheduler and wire codec without real hardware. The master end
// plays the part of a test fixture feeding/capturing bytes; the slave
// end is what gets wrapped in a Driver.
func OpenBusPTY() (master, slave *Port, err error) {
	master, err = Open("/dev/ptmx")
	if err != nil {
		return nil, nil, err
	}
	if err := master.SetLockPT(false); err != nil {
		master.Close()
		return nil, nil, err
	}
	slave, err = master.GetPTPeer(0)
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	if err := slave.MakeRaw(); err != nil {
		master.Close()
		slave.Close()
		return nil, nil, err
	}
	return master, slave, nil
}
