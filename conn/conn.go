// Package conn implements the engine's connection manager: a fixed set
// of TCP/UDP socket slots opened and driven over the AT link, each
// identified by a stable (slot, generation) handle rather than a
// pointer, with a bounded write-coalescing buffer, a periodic poll
// timer, and a receive path that turns framed socket data into pbufs
// delivered as typed events.
//
// This is the Go rendition of the teacher's connection-oriented gsm
// commands, generalized from the SIM800-only CIPSTART/CIPSEND dialect
// to the family-parametric scripts in gsm.Family, and restructured
// around stable handles instead of raw slot indices to satisfy the
// "pending request references a connection by (slot, validation_id)"
// invariant.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/gsm"
	"github.com/cellmodem/engine/pbuf"
	"github.com/cellmodem/engine/sched"
)

// Sender issues AT commands and waits for their terminator. Both at.AT
// and gsm.GSM satisfy this.
type Sender interface {
	Command(ctx context.Context, cmd string) ([]string, error)

	// SendData issues a data-prompt command (e.g. CIPSEND) and writes
	// payload once the modem raises its ">" prompt, completing on
	// "SEND OK"/"SEND FAIL".
	SendData(ctx context.Context, cmd string, payload []byte) ([]string, error)
}

// Handle stably identifies a connection slot across reuse: Generation
// increments every time the slot is opened or closed, so a request or
// event that still names a prior occupant's Handle is recognized as
// stale rather than silently applied to the new occupant (invariant 3),
// and an active slot never carries Generation 0 (invariant 4).
type Handle struct {
	Slot       int
	Generation uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("conn(%d.%d)", h.Slot, h.Generation)
}

// conn is one connection slot. All fields are guarded by Manager.mu,
// not by a per-slot lock, since slot state always changes under a
// command group that already serializes through the single AT engine.
type conn struct {
	active     bool
	inClosing  bool
	generation uint32
	proto      string
	remoteIP   string
	remotePort int
	totalRecvd int
	writeBuf   []byte
	pollID     uint64
}

// Errors returned by Manager methods, mirroring the core error taxonomy.
var (
	ErrNoSlots    = errors.New("conn: no free connection slots")
	ErrStale      = errors.New("conn: stale connection handle")
	ErrNotActive  = errors.New("conn: connection is not active")
	ErrBufferFull = errors.New("conn: write-coalesce buffer full")
	ErrParam      = errors.New("conn: invalid parameter")
)

// Manager owns a fixed array of connection slots.
type Manager struct {
	mu           sync.Mutex
	conns        []conn
	maxDataLen   int
	pollInterval time.Duration
	family       gsm.Family
	sender       Sender
	wheel        *sched.Wheel
	dispatch     event.Dispatcher
}

// Option configures a Manager created by New.
type Option func(*Manager)

// WithMaxConns overrides the default slot count of 5 (MAX_CONNS).
func WithMaxConns(n int) Option {
	return func(m *Manager) { m.conns = make([]conn, n) }
}

// WithMaxConnDataLen overrides the default coalesce-buffer bound of
// 1460 bytes (MAX_CONN_DATA_LEN).
func WithMaxConnDataLen(n int) Option {
	return func(m *Manager) { m.maxDataLen = n }
}

// WithConnPollInterval overrides the default 500ms CONN_POLL_INTERVAL.
func WithConnPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithFamily selects the device-family dialect for connect/send/close
// scripts (default SIM800).
func WithFamily(f gsm.Family) Option {
	return func(m *Manager) { m.family = f }
}

// New creates a Manager bound to sender for issuing AT commands and
// wheel for scheduling per-connection polling.
func New(sender Sender, wheel *sched.Wheel, opts ...Option) *Manager {
	m := &Manager{
		conns:        make([]conn, 5),
		maxDataLen:   1460,
		pollInterval: 500 * time.Millisecond,
		family:       gsm.SIM800{},
		sender:       sender,
		wheel:        wheel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnEvent registers h to receive connection events (ConnActive, ConnRecv,
// ConnSend, ConnClose, ConnError, ConnPoll).
func (m *Manager) OnEvent(h event.Handler) int { return m.dispatch.Register(h) }

// Unregister removes a handler previously added with OnEvent.
func (m *Manager) Unregister(token int) { m.dispatch.Unregister(token) }

func (m *Manager) allocSlot() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conns {
		if !m.conns[i].active && !m.conns[i].inClosing {
			return i, nil
		}
	}
	return -1, ErrNoSlots
}

// valid reports whether h still names the current occupant of its slot.
func (m *Manager) valid(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.Slot < 0 || h.Slot >= len(m.conns) {
		return false
	}
	return m.conns[h.Slot].generation == h.Generation
}

// Start opens a new connection to host:port over proto ("TCP" or
// "UDP"), running the family's connect script and confirming with
// CIPSTATUS, then arming the poll timer and firing ConnActive — §4.4
// steps 1-3.
func (m *Manager) Start(ctx context.Context, proto, host string, port int) (Handle, error) {
	slot, err := m.allocSlot()
	if err != nil {
		return Handle{}, err
	}

	steps := m.family.ConnStartScript(slot, proto, host, port)
	if _, err := runSteps(ctx, m.sender, steps); err != nil {
		return Handle{}, err
	}
	if _, err := m.sender.Command(ctx, "+CIPSTATUS"); err != nil {
		return Handle{}, err
	}

	m.mu.Lock()
	c := &m.conns[slot]
	c.active = true
	c.inClosing = false
	c.proto = proto
	c.remoteIP = host
	c.remotePort = port
	c.totalRecvd = 0
	c.writeBuf = nil
	// allocate with the next validation_id: a slot's generation only ever
	// increases, and an active slot never carries generation 0 (invariant 4).
	c.generation++
	gen := c.generation
	m.mu.Unlock()

	h := Handle{Slot: slot, Generation: gen}
	m.armPoll(h)

	m.dispatch.Fire(event.Event{Kind: event.KindConnActive, ConnSlot: slot, ConnGeneration: gen})
	return h, nil
}

func (m *Manager) armPoll(h Handle) {
	id := m.wheel.Add(m.pollInterval, func() { m.poll(h) })
	m.mu.Lock()
	if h.Slot >= 0 && h.Slot < len(m.conns) && m.conns[h.Slot].generation == h.Generation {
		m.conns[h.Slot].pollID = id
	}
	m.mu.Unlock()
}

func (m *Manager) poll(h Handle) {
	m.mu.Lock()
	active := h.Slot >= 0 && h.Slot < len(m.conns) &&
		m.conns[h.Slot].generation == h.Generation && m.conns[h.Slot].active
	m.mu.Unlock()
	if !active {
		return
	}
	m.dispatch.Fire(event.Event{Kind: event.KindConnPoll, ConnSlot: h.Slot, ConnGeneration: h.Generation})
	m.armPoll(h)
}

// Send issues an immediate CIPSEND of b on h, bypassing the
// write-coalescing buffer, waiting for the data prompt then SEND
// OK/FAIL.
func (m *Manager) Send(ctx context.Context, h Handle, b []byte) (int, error) {
	if !m.valid(h) {
		return 0, ErrStale
	}
	if len(b) == 0 {
		return 0, ErrParam
	}
	if len(b) > m.maxDataLen {
		b = b[:m.maxDataLen]
	}
	cmd := m.family.ConnSendCmd(h.Slot, len(b))
	if _, err := m.sender.SendData(ctx, cmd, b); err != nil {
		m.dispatch.Fire(event.Event{Kind: event.KindConnError, ConnSlot: h.Slot, ConnGeneration: h.Generation, Err: err})
		return 0, err
	}
	m.dispatch.Fire(event.Event{Kind: event.KindConnSend, ConnSlot: h.Slot, ConnGeneration: h.Generation, BytesSent: len(b)})
	return len(b), nil
}

// Write appends b to h's write-coalescing buffer, flushing a CIPSEND
// automatically once the buffer reaches MAX_CONN_DATA_LEN
// (invariant 5: 0 < ptr <= len <= MAX_CONN_DATA_LEN). Bytes beyond the
// room left in the buffer are not taken; the returned count is then less
// than len(b). Call Flush to force a send of a partially filled buffer.
func (m *Manager) Write(ctx context.Context, h Handle, b []byte) (int, error) {
	if !m.valid(h) {
		return 0, ErrStale
	}
	m.mu.Lock()
	c := &m.conns[h.Slot]
	if !c.active {
		m.mu.Unlock()
		return 0, ErrNotActive
	}
	room := m.maxDataLen - len(c.writeBuf)
	n := len(b)
	if n > room {
		n = room
	}
	c.writeBuf = append(c.writeBuf, b[:n]...)
	full := len(c.writeBuf) >= m.maxDataLen
	m.mu.Unlock()

	if n == 0 {
		return 0, ErrBufferFull
	}
	if full {
		if _, err := m.Flush(ctx, h); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush sends whatever is currently buffered for h via a single
// CIPSEND, then clears the buffer. On send failure the buffer is
// dropped and a ConnError event is fired, matching the spec's "on send
// failure, the buffer is dropped and the caller is notified" rule.
func (m *Manager) Flush(ctx context.Context, h Handle) (int, error) {
	if !m.valid(h) {
		return 0, ErrStale
	}
	m.mu.Lock()
	c := &m.conns[h.Slot]
	buf := c.writeBuf
	c.writeBuf = nil
	m.mu.Unlock()

	if len(buf) == 0 {
		return 0, nil
	}
	cmd := m.family.ConnSendCmd(h.Slot, len(buf))
	if _, err := m.sender.SendData(ctx, cmd, buf); err != nil {
		m.dispatch.Fire(event.Event{Kind: event.KindConnError, ConnSlot: h.Slot, ConnGeneration: h.Generation, Err: err})
		return 0, err
	}
	m.dispatch.Fire(event.Event{Kind: event.KindConnSend, ConnSlot: h.Slot, ConnGeneration: h.Generation, BytesSent: len(buf)})
	return len(buf), nil
}

// Close closes h, flushing any buffered writes first, then running the
// family's close script. Whatever the close command returns, the slot is
// then marked inactive, its generation is incremented (invalidating h and
// any other outstanding reference to this occupant) and a ConnClose event
// is fired; the close command's error, if any, is carried in the event
// and returned.
func (m *Manager) Close(ctx context.Context, h Handle, forced bool) error {
	if !m.valid(h) {
		return ErrStale
	}
	m.mu.Lock()
	c := &m.conns[h.Slot]
	c.inClosing = true
	pollID := c.pollID
	m.mu.Unlock()

	m.wheel.Remove(pollID)
	_, _ = m.Flush(ctx, h)

	_, err := m.sender.Command(ctx, m.family.ConnCloseCmd(h.Slot))

	m.mu.Lock()
	c.active = false
	c.inClosing = false
	c.writeBuf = nil
	c.generation++
	m.mu.Unlock()

	m.dispatch.Fire(event.Event{
		Kind:           event.KindConnClose,
		ConnSlot:       h.Slot,
		ConnGeneration: h.Generation,
		Forced:         forced,
		Err:            err,
	})
	return err
}

// ForceCloseAll immediately marks every active slot closed without
// issuing any AT traffic, firing ConnClose(forced=true) for each: the
// connection-manager side of lwcell_device_set_present(false), used when
// the engine learns the device is no longer present and any in-flight
// AT exchange is meaningless.
func (m *Manager) ForceCloseAll() {
	m.mu.Lock()
	type closed struct {
		slot int
		gen  uint32
		poll uint64
	}
	var toFire []closed
	for i := range m.conns {
		c := &m.conns[i]
		if c.active {
			toFire = append(toFire, closed{slot: i, gen: c.generation, poll: c.pollID})
			c.active = false
			c.inClosing = false
			c.writeBuf = nil
			c.generation++
		}
	}
	m.mu.Unlock()

	for _, c := range toFire {
		m.wheel.Remove(c.poll)
		m.dispatch.Fire(event.Event{
			Kind:           event.KindConnClose,
			ConnSlot:       c.slot,
			ConnGeneration: c.gen,
			Forced:         true,
			Err:            ErrNotActive,
		})
	}
}

// Recved acknowledges consumption of a received pbuf. Currently a
// no-op: the engine has no windowed flow control, but the call is kept
// so a future receive-window scheme has somewhere to hook in, per the
// spec's reserved-for-future-use note.
func (m *Manager) Recved(h Handle, n int) {}

// HandleFrame is installed as the AT engine's frame handler
// (at.AT.SetFrameHandler). It builds a pbuf from a "+RECEIVE,<id>,<len>:"
// frame, annotates it with the connection's remote IP/port, accounts
// total_recved, and fires ConnRecv. Frames for a stale or inactive slot
// are dropped silently, matching "no-op for user-visible effects"
// (invariant 3).
func (m *Manager) HandleFrame(connID int, payload []byte) {
	m.mu.Lock()
	if connID < 0 || connID >= len(m.conns) {
		m.mu.Unlock()
		return
	}
	c := &m.conns[connID]
	if !c.active {
		m.mu.Unlock()
		return
	}
	c.totalRecvd += len(payload)
	gen := c.generation
	ip := c.remoteIP
	port := c.remotePort
	total := c.totalRecvd
	m.mu.Unlock()

	buf := pbuf.New(payload)
	buf.RemoteIP = ip
	buf.RemotePort = port

	m.dispatch.Fire(event.Event{
		Kind:           event.KindConnRecv,
		ConnSlot:       connID,
		ConnGeneration: gen,
		Pbuf:           buf,
		TotalRecvd:     total,
	})
}

// runSteps executes steps in order against sender, aborting on the
// first error — the same command-group semantics as gsm.runGroup,
// reimplemented here to keep conn free of a gsm-internal dependency.
func runSteps(ctx context.Context, sender Sender, steps []string) ([]string, error) {
	var all []string
	for _, step := range steps {
		i, err := sender.Command(ctx, step)
		all = append(all, i...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
