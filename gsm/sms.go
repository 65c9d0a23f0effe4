package gsm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/warthog618/sms/encoding/pdumode"

	"github.com/cellmodem/engine/atparse"
	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/info"
)

// maxSMSTextLen is the maximum length of a plain-text SMS body accepted
// by SendSMS — 160 7-bit GSM characters, the boundary called out in the
// spec's testable properties.
const maxSMSTextLen = 160

// SMSEntry is one message returned by ReadSMS or ListSMS.
type SMSEntry struct {
	Index  int
	Status string
	Number string
	Text   string
}

// EnableSMS turns on new-message notifications (+CNMI) so that incoming
// SMSs are reported via +CMTI URCs, and installs the URC handler that
// fires event.KindSmsRecv. The other SMS methods do not depend on it:
// SendSMS, ReadSMS and the rest run whether or not EnableSMS has been
// called, and none of them returns ErrNotEnabled.
func (g *GSM) EnableSMS(ctx context.Context) error {
	ch, err := g.AddIndication("+CMTI:", 0)
	if err != nil {
		return err
	}
	go func() {
		for lines := range ch {
			fields := atparse.SplitFields(info.TrimPrefix(lines[0], "+CMTI"))
			if len(fields) != 2 {
				continue
			}
			pos, err := strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil {
				continue
			}
			g.dispatch.Fire(event.Event{
				Kind:   event.KindSmsRecv,
				SmsMem: atparse.QuotedString(fields[0]),
				SmsPos: pos,
			})
		}
	}()
	_, err = g.Command(ctx, "+CNMI=2,1,0,0,0")
	return err
}

// DisableSMS turns off new-message notifications.
func (g *GSM) DisableSMS(ctx context.Context) error {
	g.CancelIndication("+CMTI:")
	_, err := g.Command(ctx, "+CNMI=0,0,0,0,0")
	return err
}

// SendSMS sends a text-mode SMS message to number. Messages longer than
// 160 characters are rejected with ErrParam without being sent.
//
// The mr (message reference) is returned on success, else an error.
func (g *GSM) SendSMS(ctx context.Context, number string, message string) (string, error) {
	if g.pduMode {
		return "", ErrWrongMode
	}
	if number == "" {
		return "", ErrParam
	}
	if len(message) > maxSMSTextLen {
		return "", ErrParam
	}
	i, err := g.SMSCommand(ctx, "+CMGS=\""+number+"\"", message)
	if err != nil {
		g.dispatch.Fire(event.Event{Kind: event.KindSmsSend, Err: err})
		return "", err
	}
	// parse response, ignoring any lines other than well-formed.
	for _, l := range i {
		if info.HasPrefix(l, "+CMGS") {
			mr := info.TrimPrefix(l, "+CMGS")
			g.dispatch.Fire(event.Event{Kind: event.KindSmsSend, SmsMR: mr})
			return mr, nil
		}
	}
	return "", ErrMalformedResponse
}

// SendSMSPDU sends an SMS PDU.
//
// tpdu is the binary TPDU to be sent.
// The mr is returned on success, else an error.
func (g *GSM) SendSMSPDU(ctx context.Context, tpdu []byte) (string, error) {
	if !g.pduMode {
		return "", ErrWrongMode
	}
	pdu := pdumode.PDU{SMSC: g.sca, TPDU: tpdu}
	s, err := pdu.MarshalHexString()
	if err != nil {
		return "", err
	}
	i, err := g.SMSCommand(ctx, fmt.Sprintf("+CMGS=%d", len(tpdu)), s)
	if err != nil {
		return "", err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CMGS") {
			return info.TrimPrefix(l, "+CMGS"), nil
		}
	}
	return "", ErrMalformedResponse
}

// ReadSMS reads a single message from mem (e.g. "SM") at the given 1-based
// position.
func (g *GSM) ReadSMS(ctx context.Context, mem string, pos int) (SMSEntry, error) {
	if _, err := g.Command(ctx, fmt.Sprintf("+CPMS=%q", mem)); err != nil {
		return SMSEntry{}, err
	}
	i, err := g.Command(ctx, fmt.Sprintf("+CMGR=%d", pos))
	if err != nil {
		return SMSEntry{}, err
	}
	return parseSMSEntry(pos, i)
}

// ListSMS lists every message whose status matches filter (e.g. "ALL",
// "REC UNREAD") from mem.
func (g *GSM) ListSMS(ctx context.Context, mem, filter string) ([]SMSEntry, error) {
	if _, err := g.Command(ctx, fmt.Sprintf("+CPMS=%q", mem)); err != nil {
		return nil, err
	}
	i, err := g.Command(ctx, fmt.Sprintf("+CMGL=%q", filter))
	if err != nil {
		return nil, err
	}
	var entries []SMSEntry
	for n := 0; n < len(i); n++ {
		if !info.HasPrefix(i[n], "+CMGL") {
			continue
		}
		header := info.TrimPrefix(i[n], "+CMGL")
		var text string
		if n+1 < len(i) && !info.HasPrefix(i[n+1], "+CMGL") {
			text = i[n+1]
			n++
		}
		fields := atparse.SplitFields(header)
		if len(fields) < 3 {
			continue
		}
		idx, _ := strconv.Atoi(strings.TrimSpace(fields[0]))
		entries = append(entries, SMSEntry{
			Index:  idx,
			Status: atparse.QuotedString(fields[1]),
			Number: atparse.QuotedString(fields[2]),
			Text:   text,
		})
	}
	return entries, nil
}

// DeleteSMS deletes a single message at pos from mem.
func (g *GSM) DeleteSMS(ctx context.Context, mem string, pos int) error {
	if _, err := g.Command(ctx, fmt.Sprintf("+CPMS=%q", mem)); err != nil {
		return err
	}
	_, err := g.Command(ctx, fmt.Sprintf("+CMGD=%d", pos))
	return err
}

// DeleteAllSMS deletes every message in mem (CMGD delete-flag 4).
func (g *GSM) DeleteAllSMS(ctx context.Context, mem string) error {
	if _, err := g.Command(ctx, fmt.Sprintf("+CPMS=%q", mem)); err != nil {
		return err
	}
	_, err := g.Command(ctx, "+CMGD=1,4")
	return err
}

// SetPreferredStorage sets the memory bank used for read/list/delete
// operations without an explicit per-call CPMS. banks must have length
// 1-3 (mem1, optionally mem2, mem3); anything else is ErrParam.
func (g *GSM) SetPreferredStorage(ctx context.Context, banks ...string) error {
	if len(banks) < 1 || len(banks) > 3 {
		return ErrParam
	}
	quoted := make([]string, len(banks))
	for i, b := range banks {
		quoted[i] = fmt.Sprintf("%q", b)
	}
	_, err := g.Command(ctx, "+CPMS="+strings.Join(quoted, ","))
	return err
}

func parseSMSEntry(pos int, lines []string) (SMSEntry, error) {
	if len(lines) == 0 || !info.HasPrefix(lines[0], "+CMGR") {
		return SMSEntry{}, ErrMalformedResponse
	}
	fields := atparse.SplitFields(info.TrimPrefix(lines[0], "+CMGR"))
	if len(fields) < 2 {
		return SMSEntry{}, ErrMalformedResponse
	}
	entry := SMSEntry{Index: pos, Status: atparse.QuotedString(fields[0])}
	if len(fields) >= 2 {
		entry.Number = atparse.QuotedString(fields[1])
	}
	if len(lines) > 1 {
		entry.Text = lines[1]
	}
	return entry, nil
}
