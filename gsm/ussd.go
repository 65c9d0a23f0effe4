package gsm

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/warthog618/sms/encoding/gsm7"

	"github.com/cellmodem/engine/atparse"
	"github.com/cellmodem/engine/info"
)

// RunUSSD sends a USSD string (e.g. "*101#") and returns the decoded
// network response, matching the teacher's cmd/ussd example.
func (g *GSM) RunUSSD(ctx context.Context, msg string, dcs int) (string, error) {
	if msg == "" {
		return "", ErrParam
	}
	ch, err := g.AddIndication("+CUSD:", 0)
	if err != nil {
		return "", err
	}
	defer g.CancelIndication("+CUSD:")

	hmsg := strings.ToUpper(hex.EncodeToString(gsm7.Pack7BitUSSD([]byte(msg), 0)))
	cmd := fmt.Sprintf("+CUSD=1,%q,%d", hmsg, dcs)
	if _, err := g.Command(ctx, cmd); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case lines, ok := <-ch:
		if !ok || len(lines) == 0 {
			return "", ErrMalformedResponse
		}
		fields := atparse.SplitFields(info.TrimPrefix(lines[0], "+CUSD"))
		if len(fields) < 2 {
			return "", ErrMalformedResponse
		}
		rspb, err := hex.DecodeString(atparse.QuotedString(fields[1]))
		if err != nil {
			return "", ErrMalformedResponse
		}
		return string(gsm7.Unpack7BitUSSD(rspb, 0)), nil
	}
}
