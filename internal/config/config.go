// Package config loads busmaster's startup configuration from an
// optional YAML file and merges it with command-line flags, flags
// always winning over the file, the file always winning over
// built-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything cmd/busmaster needs to bring the daemon up.
// Every field has a sensible zero-value-free default applied by
// Default(); a YAML file only needs to mention what it's overriding.
type Config struct {
	BusDevice     string `yaml:"bus_device"`
	BusBaud       uint32 `yaml:"bus_baud"`
	ConsoleDevice string `yaml:"console_device"`
	ConsoleBaud   int    `yaml:"console_baud"`

	GPIOChip     string `yaml:"gpio_chip"`
	DELine       int    `yaml:"de_line"`
	RELine       int    `yaml:"re_line"`
	LEDLine      int    `yaml:"led_line"`
	LEDEnabled   bool   `yaml:"led_enabled"`
	HardwareRS485 bool  `yaml:"hw_rs485"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration the bus master boots with if
// neither a config file nor flags override anything. The bus baud
// rate is the original firmware's odd non-standard value,
// 16MHz/(8*17), which only a BOTHER-capable custom-speed path like
// serialport's can program.
func Default() Config {
	return Config{
		BusDevice:     "/dev/ttyS1",
		BusBaud:       16_000_000 / (8 * 17),
		ConsoleDevice: "/dev/ttyUSB0",
		ConsoleBaud:   115200,
		GPIOChip:      "/dev/gpiochip0",
		DELine:        17,
		RELine:        18,
		LEDLine:       27,
		LEDEnabled:    false,
		HardwareRS485: false,
		LogLevel:      "info",
	}
}

// LoadFile reads path as YAML into a copy of base, leaving any field
// the file doesn't mention untouched. A missing file is not an error:
// an operator relying entirely on flags doesn't need one.
func LoadFile(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
