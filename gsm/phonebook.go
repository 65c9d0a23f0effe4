package gsm

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cellmodem/engine/atparse"
	"github.com/cellmodem/engine/info"
)

// PhonebookEntry is a single SIM phonebook record.
type PhonebookEntry struct {
	Index  int
	Number string
	Name   string
}

// EnablePhonebook selects the SIM phonebook as the active storage (+CPBS).
func (g *GSM) EnablePhonebook(ctx context.Context) error {
	_, err := g.Command(ctx, `+CPBS="SM"`)
	return err
}

// AddPhonebookEntry appends a new entry, letting the modem pick the
// index.
func (g *GSM) AddPhonebookEntry(ctx context.Context, number, name string) error {
	if number == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf("+CPBW=,%q,,%q", number, hexName(name)))
	return err
}

// EditPhonebookEntry overwrites the entry at index.
func (g *GSM) EditPhonebookEntry(ctx context.Context, index int, number, name string) error {
	if number == "" {
		return ErrParam
	}
	_, err := g.Command(ctx, fmt.Sprintf("+CPBW=%d,%q,,%q", index, number, hexName(name)))
	return err
}

// DeletePhonebookEntry removes the entry at index.
func (g *GSM) DeletePhonebookEntry(ctx context.Context, index int) error {
	_, err := g.Command(ctx, fmt.Sprintf("+CPBW=%d", index))
	return err
}

// ReadPhonebookEntry reads a single entry by index.
func (g *GSM) ReadPhonebookEntry(ctx context.Context, index int) (PhonebookEntry, error) {
	entries, err := g.listPhonebookRange(ctx, index, index)
	if err != nil {
		return PhonebookEntry{}, err
	}
	if len(entries) == 0 {
		return PhonebookEntry{}, ErrMalformedResponse
	}
	return entries[0], nil
}

// ListPhonebookEntries lists entries in [first, last].
func (g *GSM) ListPhonebookEntries(ctx context.Context, first, last int) ([]PhonebookEntry, error) {
	return g.listPhonebookRange(ctx, first, last)
}

func (g *GSM) listPhonebookRange(ctx context.Context, first, last int) ([]PhonebookEntry, error) {
	i, err := g.Command(ctx, fmt.Sprintf("+CPBR=%d,%d", first, last))
	if err != nil {
		return nil, err
	}
	var entries []PhonebookEntry
	for _, l := range i {
		if !info.HasPrefix(l, "+CPBR") {
			continue
		}
		fields := atparse.SplitFields(info.TrimPrefix(l, "+CPBR"))
		if len(fields) < 4 {
			continue
		}
		idx, _ := strconv.Atoi(strings.TrimSpace(fields[0]))
		entries = append(entries, PhonebookEntry{
			Index:  idx,
			Number: atparse.QuotedString(fields[1]),
			Name:   unhexName(atparse.QuotedString(fields[3])),
		})
	}
	return entries, nil
}

// SearchPhonebook searches for entries whose name matches pattern
// (+CPBF).
func (g *GSM) SearchPhonebook(ctx context.Context, pattern string) ([]PhonebookEntry, error) {
	i, err := g.Command(ctx, fmt.Sprintf("+CPBF=%q", pattern))
	if err != nil {
		return nil, err
	}
	var entries []PhonebookEntry
	for _, l := range i {
		if !info.HasPrefix(l, "+CPBF") {
			continue
		}
		fields := atparse.SplitFields(info.TrimPrefix(l, "+CPBF"))
		if len(fields) < 4 {
			continue
		}
		idx, _ := strconv.Atoi(strings.TrimSpace(fields[0]))
		entries = append(entries, PhonebookEntry{
			Index:  idx,
			Number: atparse.QuotedString(fields[1]),
			Name:   unhexName(atparse.QuotedString(fields[3])),
		})
	}
	return entries, nil
}

// hexName hex-encodes name for transmission as a CPBW/CPBR text field, as
// the teacher's cmd/phonebook example expects on read.
func hexName(name string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(name)))
}

func unhexName(s string) string {
	b, err := hex.DecodeString(s)
	if err != nil {
		return s
	}
	return string(b)
}
