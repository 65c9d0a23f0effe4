// Package netconn provides a sequential, blocking wrapper over conn.Manager,
// modeled on the original engine's "netconn" API: Connect/Write/Receive/Close
// calls that block the caller's goroutine instead of returning events to a
// callback, for applications that would rather poll a socket-shaped API than
// register handlers.
package netconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cellmodem/engine/conn"
	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/pbuf"
)

// ErrTimeout indicates Receive's deadline elapsed with no data available.
var ErrTimeout = errors.New("netconn: receive timeout")

// ErrClosed indicates the NetConn has already been closed.
var ErrClosed = errors.New("netconn: closed")

// NoWait, passed to SetReceiveTimeout, makes Receive return ErrTimeout
// immediately if no data is already queued. A timeout of exactly 0 —
// including the zero value before SetReceiveTimeout is ever called —
// behaves identically, per the "timeout of exactly 0 ms on
// netconn_receive is non-blocking" boundary.
const NoWait = -1 * time.Nanosecond

// Forever, passed to SetReceiveTimeout, makes Receive block with no
// timeout until data arrives or the connection closes.
const Forever = -2 * time.Nanosecond

// Type identifies the transport for New.
type Type int

const (
	TypeTCP Type = iota
	TypeUDP
)

func (t Type) proto() string {
	if t == TypeUDP {
		return "UDP"
	}
	return "TCP"
}

// NetConn is a single sequential connection over a conn.Manager slot.
type NetConn struct {
	mgr     *conn.Manager
	typ     Type
	mu      sync.Mutex
	handle  conn.Handle
	open    bool
	token   int
	recvCh  chan *pbuf.Buf
	closeCh chan struct{}
	rcvTO   time.Duration // 0/NoWait means non-blocking; Forever blocks indefinitely
}

// New creates an unconnected NetConn of the given type, bound to mgr.
func New(mgr *conn.Manager, typ Type) *NetConn {
	return &NetConn{
		mgr:     mgr,
		typ:     typ,
		recvCh:  make(chan *pbuf.Buf, 16),
		closeCh: make(chan struct{}),
	}
}

// Connect opens the underlying connection to host:port, per
// lwcell_netconn_connect.
func (nc *NetConn) Connect(ctx context.Context, host string, port int) error {
	h, err := nc.mgr.Start(ctx, nc.typ.proto(), host, port)
	if err != nil {
		return err
	}
	nc.mu.Lock()
	nc.handle = h
	nc.open = true
	nc.mu.Unlock()
	nc.token = nc.mgr.OnEvent(nc.onEvent)
	return nil
}

// onEvent filters the manager's shared event stream down to the ones
// concerning this netconn's current handle, feeding Receive's channel.
func (nc *NetConn) onEvent(e event.Event) {
	nc.mu.Lock()
	h := nc.handle
	open := nc.open
	nc.mu.Unlock()
	if !open || e.ConnSlot != h.Slot || e.ConnGeneration != h.Generation {
		return
	}
	switch e.Kind {
	case event.KindConnRecv:
		select {
		case nc.recvCh <- e.Pbuf:
		default:
			// receive queue full; drop, matching the engine's "no
			// windowed flow control" stance.
		}
	}
}

// SetReceiveTimeout bounds how long Receive will wait for data: zero (the
// default) and NoWait both make it non-blocking, a positive duration
// bounds the wait, and Forever blocks with no timeout.
func (nc *NetConn) SetReceiveTimeout(d time.Duration) {
	nc.mu.Lock()
	nc.rcvTO = d
	nc.mu.Unlock()
}

// ReceiveTimeout reports the timeout set by SetReceiveTimeout.
func (nc *NetConn) ReceiveTimeout() time.Duration {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.rcvTO
}

// Receive blocks until a pbuf arrives, the connection closes, or the
// receive timeout elapses.
func (nc *NetConn) Receive() (*pbuf.Buf, error) {
	nc.mu.Lock()
	to := nc.rcvTO
	nc.mu.Unlock()

	if to == NoWait || to == 0 {
		select {
		case b := <-nc.recvCh:
			return b, nil
		case <-nc.closeCh:
			return nil, ErrClosed
		default:
			return nil, ErrTimeout
		}
	}

	var timeoutCh <-chan time.Time
	if to > 0 {
		t := time.NewTimer(to)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case b := <-nc.recvCh:
		return b, nil
	case <-timeoutCh:
		return nil, ErrTimeout
	case <-nc.closeCh:
		return nil, ErrClosed
	}
}

// Write sends b over a TCP netconn, buffering through the connection's
// write-coalescing path, matching lwcell_netconn_write.
func (nc *NetConn) Write(ctx context.Context, b []byte) (int, error) {
	h, ok := nc.currentHandle()
	if !ok {
		return 0, ErrClosed
	}
	return nc.mgr.Write(ctx, h, b)
}

// Flush forces out any buffered Write data immediately.
func (nc *NetConn) Flush(ctx context.Context) error {
	h, ok := nc.currentHandle()
	if !ok {
		return ErrClosed
	}
	_, err := nc.mgr.Flush(ctx, h)
	return err
}

// Send transmits b immediately over a UDP netconn, matching
// lwcell_netconn_send.
func (nc *NetConn) Send(ctx context.Context, b []byte) (int, error) {
	h, ok := nc.currentHandle()
	if !ok {
		return 0, ErrClosed
	}
	return nc.mgr.Send(ctx, h, b)
}

// Close tears down the underlying connection and unblocks any pending
// Receive.
func (nc *NetConn) Close(ctx context.Context) error {
	nc.mu.Lock()
	if !nc.open {
		nc.mu.Unlock()
		return ErrClosed
	}
	h := nc.handle
	nc.open = false
	nc.mu.Unlock()

	nc.mgr.Unregister(nc.token)
	close(nc.closeCh)
	err := nc.mgr.Close(ctx, h, true)
	return err
}

func (nc *NetConn) currentHandle() (conn.Handle, bool) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.handle, nc.open
}
