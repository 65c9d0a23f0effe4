// Package cellmodem provides the engine's top-level lifecycle: wiring
// together the at/gsm command engine, the conn connection manager and the
// sched timeout wheel into a single Engine with init/deinit, a unified
// event stream, and the device-present recovery toggle described in the
// teacher's lwcell.c rendition of init/deinit.
package cellmodem

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cellmodem/engine/conn"
	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/gsm"
	"github.com/cellmodem/engine/link"
	"github.com/cellmodem/engine/sched"
)

// Errors matching the core error taxonomy that are specific to the
// top-level lifecycle (request-kind errors such as ErrParam/ErrMem live
// closer to their owning package: at.ErrMem, gsm.ErrParam, conn.ErrStale).
var (
	// ErrNoDevice indicates the device-present flag is false.
	ErrNoDevice = errors.New("cellmodem: device not present")
)

// Engine is the fully wired runtime: one GSM/AT command engine, one
// connection manager, and one timeout wheel, with a unified event
// stream fanned in from both.
type Engine struct {
	gsm      *gsm.GSM
	conns    *conn.Manager
	wheel    *sched.Wheel
	resetter link.Resetter

	dispatch event.Dispatcher

	mu          sync.Mutex
	present     bool
	closed      chan struct{}
	closeOnce   sync.Once
	keepAlive   time.Duration
	keepAliveID uint64
	resetOnInit bool
}

// New wires a new Engine around link (typically a serial.Port), applying
// opts over the defaults in §6: MaxConns=5, MaxConnDataLen=1460,
// ConnPollInterval=500ms, SIM800 family, no keep-alive, no reset-on-init.
func New(modem io.ReadWriter, opts ...Option) (*Engine, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	g := gsm.New(modem, gsm.WithFamily(c.family))
	if c.pduMode {
		g.SetPDUMode()
	}

	wheel := sched.NewWheel(sched.SystemClock{})
	cm := conn.New(g, wheel,
		conn.WithMaxConns(c.maxConns),
		conn.WithMaxConnDataLen(c.maxConnDataLen),
		conn.WithConnPollInterval(c.connPollInterval),
		conn.WithFamily(c.family),
	)
	g.SetFrameHandler(cm.HandleFrame)

	e := &Engine{
		gsm:         g,
		conns:       cm,
		wheel:       wheel,
		present:     true,
		closed:      make(chan struct{}),
		keepAlive:   c.keepAlive,
		resetOnInit: c.resetOnInit,
	}
	if r, ok := modem.(link.Resetter); ok {
		e.resetter = r
	}
	g.OnEvent(func(evt event.Event) { e.dispatch.Fire(evt) })
	cm.OnEvent(func(evt event.Event) { e.dispatch.Fire(evt) })

	go e.runTimers()

	return e, nil
}

// GSM returns the underlying GSM command engine, for callers that need
// the typed SMS/call/phonebook/network/USSD API directly.
func (e *Engine) GSM() *gsm.GSM { return e.gsm }

// Conns returns the underlying connection manager, for TCP/UDP socket
// access and as the basis for netconn/mqtt.
func (e *Engine) Conns() *conn.Manager { return e.conns }

// OnEvent registers h to receive every event fired by the engine: device
// identification, SIM/network/operator state, SMS/call/phonebook
// notifications, connection events, and keep-alive.
func (e *Engine) OnEvent(h event.Handler) int { return e.dispatch.Register(h) }

// Unregister removes a handler previously added with OnEvent.
func (e *Engine) Unregister(token int) { e.dispatch.Unregister(token) }

// Present reports the current device-present flag.
func (e *Engine) Present() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.present
}

// SetPresent implements lwcell_device_set_present: clearing it to false
// force-closes every active connection (without any further AT traffic)
// and fires ConnClose(forced=true) for each, since any in-flight exchange
// with a device that is no longer there is meaningless. Pending requests
// already in flight on the AT engine are not separately cancelled here —
// they will themselves time out per their per-request deadline.
func (e *Engine) SetPresent(present bool) {
	e.mu.Lock()
	was := e.present
	e.present = present
	e.mu.Unlock()

	if was && !present {
		e.conns.ForceCloseAll()
	}
}

// Init brings the engine to a ready state: optionally pulsing the hardware
// reset line (if the link implements link.Resetter) and issuing a reset
// command group, then the GSM init sequence (GCAP check, SMS mode,
// device identification), and arms the keep-alive timer if configured.
func (e *Engine) Init(ctx context.Context) error {
	if !e.Present() {
		return ErrNoDevice
	}
	if e.resetOnInit {
		if e.resetter != nil {
			if err := e.resetter.Reset(true); err != nil {
				return err
			}
			if err := e.resetter.Reset(false); err != nil {
				return err
			}
		}
		if _, err := e.gsm.Command(ctx, "Z"); err != nil {
			return err
		}
	}
	if err := e.gsm.Init(ctx); err != nil {
		return err
	}
	if e.keepAlive > 0 {
		e.armKeepAlive()
	}
	return nil
}

// Deinit stops the engine's timer-driving goroutine. The underlying link
// is left for the caller to close.
func (e *Engine) Deinit() {
	e.closeOnce.Do(func() { close(e.closed) })
}

func (e *Engine) armKeepAlive() {
	e.keepAliveID = e.wheel.Add(e.keepAlive, e.fireKeepAlive)
}

func (e *Engine) fireKeepAlive() {
	select {
	case <-e.closed:
		return
	default:
	}
	e.dispatch.Fire(event.Event{Kind: event.KindKeepAlive})
	e.armKeepAlive()
}

// runTimers drives the shared sched.Wheel: the processor-side "compute a
// bounded wait to the next deadline" design of §4.5, collapsed to a
// dedicated goroutine since Go has no single mbox shared by both AT line
// delivery and timer expiry.
func (e *Engine) runTimers() {
	for {
		wait, ok := e.wheel.Next()
		if !ok {
			wait = time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-e.closed:
			t.Stop()
			return
		case <-t.C:
			e.wheel.Fire()
		}
	}
}
