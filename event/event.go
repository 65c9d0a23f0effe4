// Package event defines the typed asynchronous events the engine
// delivers to application-registered handlers, and the handler list that
// dispatches them. This is the Go rendition of the spec's "Event
// dispatch" component and the EventHandler entity of §3.
package event

import "github.com/cellmodem/engine/pbuf"

// Kind identifies the type of an Event.
type Kind int

const (
	// KindDeviceIdentified fires once the engine has read manufacturer,
	// model, revision and serial from the modem.
	KindDeviceIdentified Kind = iota
	// KindSIMState fires when the SIM readiness state changes.
	KindSIMState
	// KindNetworkReg fires when network registration status changes.
	KindNetworkReg
	// KindSignalStrength fires on an unsolicited or polled CSQ reading.
	KindSignalStrength
	// KindOperator fires when the current operator is read or changes.
	KindOperator
	// KindOperatorScanResult fires once per entry in an operator scan.
	KindOperatorScanResult
	// KindSmsRecv fires when a +CMTI new-message notification arrives
	// (once gsm's EnableSMS has been called). +CMT deliveries do not fire it.
	KindSmsRecv
	// KindSmsSend fires when an SMS send command group completes.
	KindSmsSend
	// KindCallState fires on a call state change (ringing, active, ended).
	KindCallState
	// KindPhonebook fires when a phonebook operation's async result is ready.
	KindPhonebook
	// KindConnActive fires when a connection finishes opening.
	KindConnActive
	// KindConnRecv fires when data arrives on a connection.
	KindConnRecv
	// KindConnSend fires when a send on a connection completes.
	KindConnSend
	// KindConnClose fires when a connection is closed, forced or requested.
	KindConnClose
	// KindConnError fires when a connection-level error occurs outside of
	// any single pending request (e.g. a failed buffered send).
	KindConnError
	// KindConnPoll fires periodically for an active connection.
	KindConnPoll
	// KindKeepAlive fires on the recurring keep-alive timer, independent of
	// the command queue.
	KindKeepAlive
	// KindNetworkAttached fires when a PDP context comes up and an IP is
	// assigned.
	KindNetworkAttached
)

// SIMState enumerates the readiness of the SIM card.
type SIMState int

const (
	SIMNotInserted SIMState = iota
	SIMNotReady
	SIMPINRequired
	SIMPUKRequired
	SIMReady
)

// Event is delivered to every registered Handler. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind

	// Device identification.
	Manufacturer, Model, Revision, Serial string

	// SIM / network / operator.
	SIMState     SIMState
	Registered   bool
	RAT          string // radio access technology, e.g. "GPRS", "LTE-M"
	SignalDBm    int
	OperatorName string
	OperatorID   string
	IP           string

	// SMS.
	SmsMem string
	SmsPos int
	SmsMR  string // message reference, on send
	Err    error

	// Call.
	CallNumber string
	CallState  string

	// Connection.
	ConnSlot       int
	ConnGeneration uint32
	Pbuf           *pbuf.Buf
	BytesSent      int
	TotalRecvd     int
	Forced         bool
}

// Handler receives Events. Handlers run on whichever goroutine calls
// Fire: API callers, the gsm URC goroutines and the engine's timer
// goroutine all fire events, so handlers may run concurrently with each
// other. They must not block for long, since they run inline with the
// code that fired the event.
type Handler func(Event)

// Dispatcher is a registry of Handlers, invoked in registration order.
// The zero value is ready to use.
type Dispatcher struct {
	handlers []Handler
}

// Register adds h to the dispatcher, returning a token that can be passed
// to Unregister.
func (d *Dispatcher) Register(h Handler) int {
	d.handlers = append(d.handlers, h)
	return len(d.handlers) - 1
}

// Unregister removes the handler with the given token. Unregistering an
// already-removed or out-of-range token is a no-op.
func (d *Dispatcher) Unregister(token int) {
	if token < 0 || token >= len(d.handlers) {
		return
	}
	d.handlers[token] = nil
}

// Fire delivers evt to every registered, non-removed handler.
func (d *Dispatcher) Fire(evt Event) {
	for _, h := range d.handlers {
		if h != nil {
			h(evt)
		}
	}
}
