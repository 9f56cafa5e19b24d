// Command busmaster discovers and polls up to 128 half-duplex RS-485
// slaves on one serial line and reports their status to an upstream
// console link. See the package comments under internal/ for the
// protocol and state machine this implements.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/tarm/serial"

	"github.com/rs485bus/busmaster/internal/busclock"
	"github.com/rs485bus/busmaster/internal/busline"
	"github.com/rs485bus/busmaster/internal/busuart"
	"github.com/rs485bus/busmaster/internal/config"
	"github.com/rs485bus/busmaster/internal/consoleio"
	"github.com/rs485bus/busmaster/internal/devtable"
	"github.com/rs485bus/busmaster/internal/gpioline"
	"github.com/rs485bus/busmaster/internal/report"
	"github.com/rs485bus/busmaster/internal/scheduler"
	"github.com/rs485bus/busmaster/internal/serialport"
	"github.com/rs485bus/busmaster/internal/transport"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if err := run(cfg); err != nil {
		log.Fatal("busmaster exited", "err", err)
	}
}

func parseFlags() (config.Config, error) {
	def := config.Default()

	configPath := pflag.String("config", "", "path to an optional busmaster.yaml")
	busDevice := pflag.String("bus-device", "", "bus RS-485 tty device (overrides config)")
	consoleDevice := pflag.String("console-device", "", "console tty device (overrides config)")
	busBaud := pflag.Uint32("bus-baud", 0, "bus custom baud rate, 0 keeps config/default")
	consoleBaud := pflag.Int("console-baud", 0, "console baud rate, 0 keeps config/default")
	gpioChip := pflag.String("gpio-chip", "", "gpiochip device for DE/RE (overrides config)")
	deLine := pflag.Int("de-line", -1, "DE GPIO line offset, -1 keeps config/default")
	reLine := pflag.Int("re-line", -1, "RE GPIO line offset, -1 keeps config/default")
	hwRS485 := pflag.Bool("hw-rs485", false, "use the kernel TIOCSRS485 direction control instead of GPIO")
	ledEnabled := pflag.Bool("led", false, "drive a GPIO activity LED around each bus exchange")
	ledLine := pflag.Int("led-line", -1, "LED GPIO line offset, -1 keeps config/default")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn, error")
	pflag.Parse()

	cfg, err := config.LoadFile(*configPath, def)
	if err != nil {
		return cfg, err
	}

	if *busDevice != "" {
		cfg.BusDevice = *busDevice
	}
	if *consoleDevice != "" {
		cfg.ConsoleDevice = *consoleDevice
	}
	if *busBaud != 0 {
		cfg.BusBaud = *busBaud
	}
	if *consoleBaud != 0 {
		cfg.ConsoleBaud = *consoleBaud
	}
	if *gpioChip != "" {
		cfg.GPIOChip = *gpioChip
	}
	if *deLine >= 0 {
		cfg.DELine = *deLine
	}
	if *reLine >= 0 {
		cfg.RELine = *reLine
	}
	if *hwRS485 {
		cfg.HardwareRS485 = true
	}
	if *ledEnabled {
		cfg.LEDEnabled = true
	}
	if *ledLine >= 0 {
		cfg.LEDLine = *ledLine
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	busPort, err := openBusPort(cfg)
	if err != nil {
		return fmt.Errorf("open bus device %s: %w", cfg.BusDevice, err)
	}
	defer busPort.Close()

	consolePort, err := serial.OpenPort(&serial.Config{
		Name:        cfg.ConsoleDevice,
		Baud:        cfg.ConsoleBaud,
		ReadTimeout: time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open console device %s: %w", cfg.ConsoleDevice, err)
	}
	defer consolePort.Close()

	xcvr, closeXcvr, err := openTransceiver(cfg, busPort)
	if err != nil {
		return fmt.Errorf("set up RS-485 direction control: %w", err)
	}
	defer closeXcvr()

	var indicator busline.ActivityIndicator
	if cfg.LEDEnabled {
		led, err := gpioline.NewLED(cfg.GPIOChip, cfg.LEDLine)
		if err != nil {
			return fmt.Errorf("set up activity LED: %w", err)
		}
		defer led.Close()
		indicator = led
	}

	clock := busclock.NewSystem()
	uart := busuart.New(busPort)
	driverOpts := []busline.Option{}
	if indicator != nil {
		driverOpts = append(driverOpts, busline.WithActivityIndicator(indicator))
	}
	driver := busline.NewDriver(uart, xcvr, clock, driverOpts...)
	exchange := transport.New(driver)

	emitter := report.NewEmitter(consolePort)
	reporter := &loggingReporter{Emitter: emitter}
	console := consoleio.New(consolePort)

	var table devtable.Table
	sched := scheduler.New(&table, clock, exchange, reporter, console)

	emitter.Init()
	log.Info("busmaster started",
		"bus_device", cfg.BusDevice,
		"console_device", cfg.ConsoleDevice,
		"hw_rs485", cfg.HardwareRS485,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		sched.Step()
	}
	log.Info("busmaster shutting down")
	return nil
}

// openBusPort opens the bus tty, puts it in raw mode, and programs
// the custom baud rate via BOTHER — the fixed B-constant table has no
// entry for 16MHz/(8*17).
func openBusPort(cfg config.Config) (*serialport.Port, error) {
	port, err := serialport.Open(cfg.BusDevice)
	if err != nil {
		return nil, err
	}
	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.SetCustomSpeed(cfg.BusBaud)
	if err := port.SetAttr2(serialport.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// openTransceiver wires busline.Transceiver to either the kernel's
// own RS-485 direction control or a bit-banged GPIO DE/RE pair,
// depending on cfg.HardwareRS485. Both paths produce the same
// interface, so the line driver never knows which one is in use.
func openTransceiver(cfg config.Config, port *serialport.Port) (busline.Transceiver, func(), error) {
	if cfg.HardwareRS485 {
		if err := port.SetRS485(&serialport.RS485{
			Flags: serialport.RS485Enabled | serialport.RS485RTSOnSend,
		}); err != nil {
			return nil, nil, err
		}
		return hardwareTransceiver{}, func() {}, nil
	}
	xcvr, err := gpioline.NewTransceiver(cfg.GPIOChip, cfg.DELine, cfg.RELine)
	if err != nil {
		return nil, nil, err
	}
	return xcvr, func() { xcvr.Close() }, nil
}

// hardwareTransceiver is a no-op busline.Transceiver: once
// TIOCSRS485 is programmed, the kernel toggles the direction line
// around every write on its own.
type hardwareTransceiver struct{}

func (hardwareTransceiver) AssertTX() {}
func (hardwareTransceiver) AssertRX() {}

// loggingReporter adds an operator-facing warning log line alongside
// the wire-visible diagnostic lines report.Emitter already writes to
// the console link, so an operator tailing stderr doesn't have to
// reparse the console protocol to see why a device dropped.
type loggingReporter struct {
	*report.Emitter
}

func (r *loggingReporter) CRCMismatch(dev int) {
	r.Emitter.CRCMismatch(dev)
	log.Warn("CRC mismatch", "device", dev)
}

func (r *loggingReporter) PollTimeout(dev int) {
	r.Emitter.PollTimeout(dev)
	log.Warn("poll timeout", "device", dev)
}
