// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package gsm provides a driver for GSM/NB-IoT modems, decorating the
// low-level at.AT command facade with the typed request API described in
// the spec: SMS, voice call, phonebook, network attach, sockets and USSD,
// plus the typed event stream delivering URCs to application handlers.
package gsm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/warthog618/sms/encoding/pdumode"

	"github.com/cellmodem/engine/at"
	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/info"
)

// GSM modem decorates the AT modem with GSM specific functionality.
type GSM struct {
	*at.AT
	sca      pdumode.SMSCAddress
	pduMode  bool
	family   Family
	dispatch event.Dispatcher

	devInfo DeviceInfo
}

// Option configures a GSM created by New.
type Option func(*GSM)

// WithFamily selects the device family dialect (default SIM800).
func WithFamily(f Family) Option {
	return func(g *GSM) { g.family = f }
}

// New creates a new GSM modem.
func New(modem io.ReadWriter, opts ...Option) *GSM {
	g := &GSM{AT: at.New(modem), family: SIM800{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetSCA sets the SCA used when transmitting SMSs.
//
// This overrides the default set in the SIM.
func (g *GSM) SetSCA(sca pdumode.SMSCAddress) {
	g.sca = sca
}

// SetPDUMode sets the GSM to use PDU mode when transmitting SMSs.
//
// This must be called before Init.
func (g *GSM) SetPDUMode() {
	g.pduMode = true
}

// Family reports the device-family dialect this GSM was configured with.
func (g *GSM) Family() Family {
	return g.family
}

// OnEvent registers h to receive every event fired by this modem
// (device identification, SIM/network/operator state, SMS/call/phonebook
// notifications, keep-alive). It returns a token for Unregister.
func (g *GSM) OnEvent(h event.Handler) int {
	return g.dispatch.Register(h)
}

// Unregister removes a handler previously added with OnEvent.
func (g *GSM) Unregister(token int) {
	g.dispatch.Unregister(token)
}

// DeviceInfo holds the manufacturer/model/revision/serial read during
// Init, cached for the lifetime of the GSM.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Revision     string
	Serial       string
}

// Info returns the cached device info collected at Init.
func (g *GSM) Info() DeviceInfo {
	return g.devInfo
}

// Init initialises the GSM modem: the underlying AT reset/sync sequence,
// a +GCAP capability check, SMS format configuration (text mode, or PDU
// mode when PDU mode has been selected), textual error reporting, and
// reading device identification, firing event.KindDeviceIdentified on
// success.
func (g *GSM) Init(ctx context.Context) error {
	if err := g.AT.Init(ctx); err != nil {
		return err
	}
	// test GCAP response to ensure +GSM support, and modem sync.
	i, err := g.Command(ctx, "+GCAP")
	if err != nil {
		return err
	}
	capabilities := make(map[string]bool)
	for _, l := range i {
		if info.HasPrefix(l, "+GCAP") {
			caps := strings.Split(info.TrimPrefix(l, "+GCAP"), ",")
			for _, cap := range caps {
				capabilities[cap] = true
			}
		}
	}
	if !capabilities["+CGSM"] {
		return ErrNotGSMCapable
	}
	cmds := []string{
		"+CMGF=1", // text mode
		"+CMEE=2", // textual errors
	}
	if g.pduMode {
		cmds[0] = "+CMGF=0" // pdu mode
	}
	for _, cmd := range cmds {
		if _, err := g.Command(ctx, cmd); err != nil {
			return err
		}
	}
	if err := g.readDeviceInfo(ctx); err != nil {
		return err
	}
	g.dispatch.Fire(event.Event{
		Kind:         event.KindDeviceIdentified,
		Manufacturer: g.devInfo.Manufacturer,
		Model:        g.devInfo.Model,
		Revision:     g.devInfo.Revision,
		Serial:       g.devInfo.Serial,
	})
	return nil
}

func (g *GSM) readDeviceInfo(ctx context.Context) error {
	fields := []struct {
		cmd string
		dst *string
	}{
		{"+CGMI", &g.devInfo.Manufacturer},
		{"+CGMM", &g.devInfo.Model},
		{"+CGMR", &g.devInfo.Revision},
		{"+CGSN", &g.devInfo.Serial},
	}
	for _, f := range fields {
		i, err := g.Command(ctx, f.cmd)
		if err != nil {
			return fmt.Errorf("AT%s: %w", f.cmd, err)
		}
		if len(i) > 0 {
			*f.dst = strings.TrimSpace(i[0])
		}
	}
	return nil
}

// SignalStrength reads the current signal quality (AT+CSQ), returning the
// RSSI in dBm (or -999 if unknown) and firing event.KindSignalStrength.
func (g *GSM) SignalStrength(ctx context.Context) (int, error) {
	i, err := g.Command(ctx, "+CSQ")
	if err != nil {
		return 0, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CSQ") {
			fields := strings.Split(info.TrimPrefix(l, "+CSQ"), ",")
			rssi, err := strconv.Atoi(strings.TrimSpace(fields[0]))
			if err != nil {
				return 0, ErrMalformedResponse
			}
			dBm := -999
			if rssi != 99 {
				dBm = -113 + 2*rssi
			}
			g.dispatch.Fire(event.Event{Kind: event.KindSignalStrength, SignalDBm: dBm})
			return dBm, nil
		}
	}
	return 0, ErrMalformedResponse
}

var (
	// ErrNotGSMCapable indicates that the modem does not support the GSM
	// command set, as determined from the GCAP response.
	ErrNotGSMCapable = errors.New("modem is not GSM capable")

	// ErrNotPINReady indicates the modem SIM card is not ready to perform operations.
	ErrNotPINReady = errors.New("modem is not PIN Ready")

	// ErrMalformedResponse indicates the modem returned a badly formed
	// response.
	ErrMalformedResponse = errors.New("modem returned malformed response")

	// ErrWrongMode indicates the GSM modem is operating in the wrong mode and so cannot support the command.
	ErrWrongMode = errors.New("modem is in the wrong mode")

	// ErrNotEnabled indicates a feature (SMS/Call/Phonebook) was used
	// before being explicitly enabled. No method of this package returns
	// it.
	ErrNotEnabled = errors.New("feature not enabled")

	// ErrParam indicates a parameter failed validation before the
	// request was ever sent to the modem.
	ErrParam = errors.New("invalid parameter")
)
