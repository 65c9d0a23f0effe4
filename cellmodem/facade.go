package cellmodem

import (
	"context"

	"github.com/cellmodem/engine/conn"
)

// The bulk of the typed request API (SMS, call, phonebook, network,
// USSD) lives on GSM() directly rather than being re-exported
// method-for-method on Engine: gsm.GSM already implements the exact
// blocking dual-path façade of §4.1, and duplicating every method here
// would only rot as that surface grows. Engine adds a couple of
// cross-cutting conveniences that span gsm and conn.

// SendSMS is a thin convenience for the common case, equivalent to
// e.GSM().SendSMS.
func (e *Engine) SendSMS(ctx context.Context, number, message string) (string, error) {
	if !e.Present() {
		return "", ErrNoDevice
	}
	return e.gsm.SendSMS(ctx, number, message)
}

// DialTCP opens a TCP connection through the connection manager,
// equivalent to e.Conns().Start(ctx, "TCP", host, port).
func (e *Engine) DialTCP(ctx context.Context, host string, port int) (conn.Handle, error) {
	if !e.Present() {
		return conn.Handle{}, ErrNoDevice
	}
	return e.conns.Start(ctx, "TCP", host, port)
}

// DialUDP opens a UDP connection through the connection manager.
func (e *Engine) DialUDP(ctx context.Context, host string, port int) (conn.Handle, error) {
	if !e.Present() {
		return conn.Handle{}, ErrNoDevice
	}
	return e.conns.Start(ctx, "UDP", host, port)
}
