package cellmodem

import (
	"time"

	"github.com/cellmodem/engine/gsm"
)

// config collects the options recognized in §6, in their pre-New form.
type config struct {
	maxConns         int
	maxConnDataLen   int
	connPollInterval time.Duration
	keepAlive        time.Duration
	atEcho           bool
	resetOnInit      bool
	pduMode          bool
	family           gsm.Family
	features         map[string]bool
}

func defaultConfig() *config {
	return &config{
		maxConns:         5,
		maxConnDataLen:   1460,
		connPollInterval: 500 * time.Millisecond,
		family:           gsm.SIM800{},
		features:         make(map[string]bool),
	}
}

// Option configures an Engine created by New.
type Option func(*config)

// WithMaxConns overrides the default connection slot count (MAX_CONNS=5).
func WithMaxConns(n int) Option {
	return func(c *config) { c.maxConns = n }
}

// WithMaxConnDataLen overrides the default per-send/coalesce cap
// (MAX_CONN_DATA_LEN=1460).
func WithMaxConnDataLen(n int) Option {
	return func(c *config) { c.maxConnDataLen = n }
}

// WithConnPollInterval overrides the default per-connection poll period
// (CONN_POLL_INTERVAL=500ms).
func WithConnPollInterval(d time.Duration) Option {
	return func(c *config) { c.connPollInterval = d }
}

// WithKeepAlive enables a recurring KindKeepAlive event every d
// (KEEP_ALIVE_TIMEOUT). Zero (the default) disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) { c.keepAlive = d }
}

// WithATEcho records whether the modem has command echo enabled
// (AT_ECHO). The value is stored in the engine configuration only; the
// at package discards echoed command lines whether or not it is set.
func WithATEcho(echo bool) Option {
	return func(c *config) { c.atEcho = echo }
}

// WithResetOnInit runs a reset command group as part of Init
// (RESET_ON_INIT).
func WithResetOnInit(reset bool) Option {
	return func(c *config) { c.resetOnInit = reset }
}

// WithFamily selects the device-family dialect (SIM800 default, or
// SIM7000 for NB-IoT modems).
func WithFamily(f gsm.Family) Option {
	return func(c *config) { c.family = f }
}

// WithPDUMode configures SMS in PDU mode instead of the default text
// mode.
func WithPDUMode() Option {
	return func(c *config) { c.pduMode = true }
}

// WithFeatures records which optional feature groups (NETWORK, CONN,
// SMS, CALL, PHONEBOOK, USSD, NETCONN, MQTT) the application intends to
// use. The engine does not currently gate any method on this — every
// package is always wired — but it is recorded for parity with §6 and
// for diagnostic logging.
func WithFeatures(names ...string) Option {
	return func(c *config) {
		for _, n := range names {
			c.features[n] = true
		}
	}
}
