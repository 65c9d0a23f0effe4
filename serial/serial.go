// Package serial provides a serial port, implementing the link.Link
// contract, that connects the at, gsm and conn packages to a physical
// modem over github.com/tarm/serial.
package serial

import (
	"github.com/tarm/serial"
)

// Config holds the serial port configuration.
type Config struct {
	port string
	baud int
}

// Option modifies a Config created by New.
type Option func(*Config)

// WithPort overrides the device path of the serial port, e.g.
// "/dev/ttyUSB0".
func WithPort(port string) Option {
	return func(c *Config) {
		c.port = port
	}
}

// WithBaud overrides the baud rate of the serial port.
func WithBaud(baud int) Option {
	return func(c *Config) {
		c.baud = baud
	}
}

// Port wraps a tarm/serial.Port, exposing it as a link.Link.
type Port struct {
	*serial.Port
}

// New opens a serial port using the given options, defaulting to the
// platform-specific defaultConfig (see serial_linux.go et al).
func New(options ...Option) (*Port, error) {
	cfg := defaultConfig
	for _, option := range options {
		option(&cfg)
	}
	sCfg := &serial.Config{Name: cfg.port, Baud: cfg.baud}
	p, err := serial.OpenPort(sCfg)
	if err != nil {
		return nil, err
	}
	return &Port{Port: p}, nil
}
