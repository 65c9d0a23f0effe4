package gsm

import (
	"context"
	"strconv"
	"strings"

	"github.com/cellmodem/engine/atparse"
	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/info"
)

// EnableCall installs the URC handlers for incoming-call notification
// (+CRING/+CLIP), firing event.KindCallState.
func (g *GSM) EnableCall(ctx context.Context) error {
	ch, err := g.AddIndication("+CRING:", 0)
	if err != nil {
		return err
	}
	go func() {
		for lines := range ch {
			g.dispatch.Fire(event.Event{
				Kind:      event.KindCallState,
				CallState: strings.TrimSpace(info.TrimPrefix(lines[0], "+CRING")),
			})
		}
	}()
	clip, err := g.AddIndication("+CLIP:", 0)
	if err != nil {
		return err
	}
	go func() {
		for lines := range clip {
			fields := atparse.SplitFields(info.TrimPrefix(lines[0], "+CLIP"))
			if len(fields) == 0 {
				continue
			}
			g.dispatch.Fire(event.Event{
				Kind:       event.KindCallState,
				CallState:  "ringing",
				CallNumber: atparse.QuotedString(fields[0]),
			})
		}
	}()
	_, err = g.Command(ctx, "+CLIP=1")
	return err
}

// DisableCall removes the incoming-call URC handlers.
func (g *GSM) DisableCall(ctx context.Context) error {
	g.CancelIndication("+CRING:")
	g.CancelIndication("+CLIP:")
	_, err := g.Command(ctx, "+CLIP=0")
	return err
}

// StartCall originates a voice call to number.
func (g *GSM) StartCall(ctx context.Context, number string) error {
	if number == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, "D"+number+";")
	return err
}

// AnswerCall answers an incoming call.
func (g *GSM) AnswerCall(ctx context.Context) error {
	_, err := g.Command(ctx, "A")
	return err
}

// HangUp terminates the current call.
func (g *GSM) HangUp(ctx context.Context) error {
	_, err := g.Command(ctx, "H")
	return err
}

// CallStatus reports whether a call is currently active, reading it from
// +CLCC.
func (g *GSM) CallStatus(ctx context.Context) (bool, error) {
	i, err := g.Command(ctx, "+CLCC")
	if err != nil {
		return false, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CLCC") {
			fields := atparse.SplitFields(info.TrimPrefix(l, "+CLCC"))
			if len(fields) < 3 {
				continue
			}
			state, err := strconv.Atoi(strings.TrimSpace(fields[2]))
			if err != nil {
				continue
			}
			return state == 0 || state == 2, nil // 0=active, 2=dialing
		}
	}
	return false, nil
}
