package gsm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/info"
)

// SIMStatus reads the current SIM readiness (+CPIN?) and fires
// event.KindSIMState.
func (g *GSM) SIMStatus(ctx context.Context) (event.SIMState, error) {
	i, err := g.Command(ctx, "+CPIN?")
	if err != nil {
		return event.SIMNotReady, err
	}
	state := event.SIMNotReady
	for _, l := range i {
		if info.HasPrefix(l, "+CPIN") {
			switch strings.TrimSpace(info.TrimPrefix(l, "+CPIN")) {
			case "READY":
				state = event.SIMReady
			case "SIM PIN":
				state = event.SIMPINRequired
			case "SIM PUK":
				state = event.SIMPUKRequired
			default:
				state = event.SIMNotReady
			}
		}
	}
	g.dispatch.Fire(event.Event{Kind: event.KindSIMState, SIMState: state})
	return state, nil
}

// EnterPIN submits the SIM PIN.
func (g *GSM) EnterPIN(ctx context.Context, pin string) error {
	if pin == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf("+CPIN=%q", pin))
	return err
}

// EnterPUK submits the SIM PUK together with a new PIN to set.
func (g *GSM) EnterPUK(ctx context.Context, puk, newPIN string) error {
	if puk == "" || newPIN == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf("+CPIN=%q,%q", puk, newPIN))
	return err
}

// ChangePIN changes the SIM PIN from oldPIN to newPIN (+CPWD).
func (g *GSM) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	if oldPIN == "" || newPIN == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf(`+CPWD="SC",%q,%q`, oldPIN, newPIN))
	return err
}

// AddPINLock enables SIM PIN enforcement (+CLCK), so the SIM will
// require pin to be entered again on next power-up.
func (g *GSM) AddPINLock(ctx context.Context, pin string) error {
	if pin == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf(`+CLCK="SC",1,%q`, pin))
	return err
}

// RemovePINLock disables SIM PIN enforcement (+CLCK).
func (g *GSM) RemovePINLock(ctx context.Context, pin string) error {
	if pin == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf(`+CLCK="SC",0,%q`, pin))
	return err
}
