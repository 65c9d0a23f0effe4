package cellmodem

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/link"
)

// scriptedModem is a minimal in-memory modem driven by a command/response
// table, in the style of gsm's mock modem test harness.
type scriptedModem struct {
	cmdSet map[string][]string
	r      chan []byte
	closed bool
}

func newScriptedModem(cmdSet map[string][]string) *scriptedModem {
	return &scriptedModem{cmdSet: cmdSet, r: make(chan []byte, 16)}
}

func (m *scriptedModem) Read(p []byte) (int, error) {
	data, ok := <-m.r
	if data == nil {
		return 0, fmt.Errorf("closed")
	}
	copy(p, data)
	if !ok {
		return len(data), fmt.Errorf("closed with data")
	}
	return len(data), nil
}

func (m *scriptedModem) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("closed")
	}
	v := m.cmdSet[string(p)]
	if len(v) == 0 {
		m.r <- []byte("\r\nERROR\r\n")
	} else {
		for _, l := range v {
			if len(l) == 0 {
				continue
			}
			m.r <- []byte(l)
		}
	}
	return len(p), nil
}

func (m *scriptedModem) Close() error {
	if !m.closed {
		m.closed = true
		close(m.r)
	}
	return nil
}

// resettableModem composes a scriptedModem with a mocked link.Resetter, so
// Engine's optional hardware-reset path can be exercised without a real
// reset-capable serial link.
type resettableModem struct {
	*scriptedModem
	*link.MockResetter
}

func initCmdSet() map[string][]string {
	return map[string][]string{
		string(27) + "\r\n\r\n": {"\r\n"},
		"ATZ\r\n":               {"OK\r\n"},
		"AT^CURC=0\r\n":         {"OK\r\n"},
		"AT+CMEE=2\r\n":         {"OK\r\n"},
		"AT+CMGF=1\r\n":         {"OK\r\n"},
		"AT+GCAP\r\n":           {"+GCAP: +CGSM,+DS,+ES\r\n", "OK\r\n"},
		"AT+CGMI\r\n":           {"SIMCOM\r\n", "OK\r\n"},
		"AT+CGMM\r\n":           {"SIM800\r\n", "OK\r\n"},
		"AT+CGMR\r\n":           {"R1\r\n", "OK\r\n"},
		"AT+CGSN\r\n":           {"1234567890\r\n", "OK\r\n"},
	}
}

func TestNewWiresDefaults(t *testing.T) {
	m := newScriptedModem(initCmdSet())
	defer m.Close()
	e, err := New(m)
	require.NoError(t, err)
	require.NotNil(t, e.GSM())
	require.NotNil(t, e.Conns())
	assert.True(t, e.Present())
	e.Deinit()
}

func TestInitFiresDeviceIdentified(t *testing.T) {
	m := newScriptedModem(initCmdSet())
	defer m.Close()
	e, err := New(m)
	require.NoError(t, err)
	defer e.Deinit()

	events := make(chan event.Event, 8)
	e.OnEvent(func(evt event.Event) { events <- evt })

	ctx := context.Background()
	require.NoError(t, e.Init(ctx))

	select {
	case evt := <-events:
		assert.Equal(t, event.KindDeviceIdentified, evt.Kind)
		assert.Equal(t, "SIMCOM", evt.Manufacturer)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DeviceIdentified event")
	}
}

func TestInitPulsesHardwareResetWhenConfigured(t *testing.T) {
	cmdSet := initCmdSet()
	sm := newScriptedModem(cmdSet)
	defer sm.Close()

	ctrl := gomock.NewController(t)
	mr := link.NewMockResetter(ctrl)
	gomock.InOrder(
		mr.EXPECT().Reset(true).Return(nil),
		mr.EXPECT().Reset(false).Return(nil),
	)
	modem := &resettableModem{scriptedModem: sm, MockResetter: mr}

	e, err := New(modem, WithResetOnInit(true))
	require.NoError(t, err)
	defer e.Deinit()

	require.NoError(t, e.Init(context.Background()))
}

func TestSetPresentForceClosesConnections(t *testing.T) {
	cmdSet := initCmdSet()
	cmdSet[`AT+CIPSTART=0,"TCP","example.com",80`+"\r\n"] = []string{"OK\r\n"}
	cmdSet["AT+CIPSTATUS\r\n"] = []string{"OK\r\n"}
	m := newScriptedModem(cmdSet)
	defer m.Close()

	e, err := New(m)
	require.NoError(t, err)
	defer e.Deinit()
	require.NoError(t, e.Init(context.Background()))

	h, err := e.DialTCP(context.Background(), "example.com", 80)
	require.NoError(t, err)

	events := make(chan event.Event, 8)
	e.OnEvent(func(evt event.Event) {
		if evt.Kind == event.KindConnClose {
			events <- evt
		}
	})

	e.SetPresent(false)

	select {
	case evt := <-events:
		assert.Equal(t, h.Slot, evt.ConnSlot)
		assert.True(t, evt.Forced)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forced ConnClose")
	}

	assert.False(t, e.Present())
	_, err = e.DialTCP(context.Background(), "example.com", 80)
	assert.Equal(t, ErrNoDevice, err)
}
