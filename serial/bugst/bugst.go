// Package bugst provides an alternate serial link.Link backend built on
// go.bug.st/serial, for platforms or use cases where tarm/serial's more
// limited configuration (no RTS/DTR control, no port listing) is
// insufficient. It implements the same Config/Option shape as the
// top-level serial package so callers can swap backends without touching
// surrounding code.
package bugst

import (
	"go.bug.st/serial"
)

// Config holds the serial port configuration.
type Config struct {
	port string
	baud int
}

// Option modifies a Config created by New.
type Option func(*Config)

// WithPort overrides the device path of the serial port.
func WithPort(port string) Option {
	return func(c *Config) { c.port = port }
}

// WithBaud overrides the baud rate of the serial port.
func WithBaud(baud int) Option {
	return func(c *Config) { c.baud = baud }
}

// Port wraps a go.bug.st/serial.Port, exposing it as a link.Link and
// link.Resetter (via DTR toggling, which on most USB modem dongles is
// wired to the hardware reset or power-key line).
type Port struct {
	serial.Port
}

// New opens a serial port using the given options.
func New(options ...Option) (*Port, error) {
	cfg := Config{port: "/dev/ttyUSB0", baud: 115200}
	for _, option := range options {
		option(&cfg)
	}
	mode := &serial.Mode{BaudRate: cfg.baud}
	p, err := serial.Open(cfg.port, mode)
	if err != nil {
		return nil, err
	}
	return &Port{Port: p}, nil
}

// Reset drives the DTR line, which on many SIM800/SIM7000 USB dongles is
// wired to the modem's reset or power-key input.
func (p *Port) Reset(asserted bool) error {
	return p.Port.SetDTR(!asserted)
}

// Ports lists the serial ports currently present on the system, for
// interactive tools that let the user pick a device.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
