package gsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cellmodem/engine/event"
)

func TestStartCallAndHangUp(t *testing.T) {
	cmdSet := map[string][]string{
		"ATD+123456789;\r\n": {"OK\r\n"},
		"ATH\r\n":            {"OK\r\n"},
	}
	g, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)

	assert.Nil(t, g.StartCall(context.Background(), "+123456789"))
	assert.Nil(t, g.HangUp(context.Background()))
}

func TestStartCallRejectsEmptyNumber(t *testing.T) {
	g, mm := setupModem(t, nil)
	defer teardownModem(mm)

	err := g.StartCall(context.Background(), "")
	assert.Equal(t, ErrParam, err)
}

func TestAnswerCall(t *testing.T) {
	cmdSet := map[string][]string{
		"ATA\r\n": {"OK\r\n"},
	}
	g, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)

	assert.Nil(t, g.AnswerCall(context.Background()))
}

func TestCallStatusActive(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CLCC\r\n": {`+CLCC: 1,0,0,0,0,"+123456789",145` + "\r\n", "OK\r\n"},
	}
	g, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)

	active, err := g.CallStatus(context.Background())
	assert.Nil(t, err)
	assert.True(t, active)
}

func TestCallStatusNoCall(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CLCC\r\n": {"OK\r\n"},
	}
	g, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)

	active, err := g.CallStatus(context.Background())
	assert.Nil(t, err)
	assert.False(t, active)
}

func TestEnableCallFiresRingingOnCLIP(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CLIP=1\r\n": {"OK\r\n"},
	}
	g, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)

	evts := make(chan event.Event, 4)
	g.OnEvent(func(e event.Event) {
		if e.Kind == event.KindCallState {
			evts <- e
		}
	})

	assert.Nil(t, g.EnableCall(context.Background()))

	mm.r <- []byte(`+CLIP: "+123456789",145` + "\r\n")

	select {
	case e := <-evts:
		assert.Equal(t, "ringing", e.CallState)
		assert.Equal(t, "+123456789", e.CallNumber)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ringing event")
	}
}

func TestDisableCall(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CLIP=1\r\n": {"OK\r\n"},
		"AT+CLIP=0\r\n": {"OK\r\n"},
	}
	g, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)

	assert.Nil(t, g.EnableCall(context.Background()))
	assert.Nil(t, g.DisableCall(context.Background()))
}
