package gsm

import (
	"context"
	"strconv"
	"strings"

	"github.com/cellmodem/engine/atparse"
	"github.com/cellmodem/engine/event"
	"github.com/cellmodem/engine/info"
)

// NetworkAttach runs the family-specific script to activate a PDP context
// and obtain an IP, as a single command group: every sub-command must
// succeed or the whole attach fails at the first error (S6 in the spec).
// On success it fires event.KindNetworkAttached with the obtained IP.
func (g *GSM) NetworkAttach(ctx context.Context, apn, user, pass string) (string, error) {
	steps := g.family.NetworkAttachScript(apn, user, pass)
	info_, err := runGroup(ctx, g.Command, steps)
	if err != nil {
		return "", err
	}
	ip := ""
	if len(info_) > 0 {
		ip = strings.TrimSpace(info_[len(info_)-1])
	}
	if parsed, perr := atparse.IP(ip); perr == nil {
		ip = atparse.FormatIP(parsed)
	}
	g.dispatch.Fire(event.Event{Kind: event.KindNetworkAttached, IP: ip})
	return ip, nil
}

// NetworkDetach tears down the PDP context.
func (g *GSM) NetworkDetach(ctx context.Context) error {
	_, err := runGroup(ctx, g.Command, g.family.NetworkDetachScript())
	return err
}

// NetworkStatus reports whether the engine is currently registered, and
// the raw registration status code from +CREG?, firing
// event.KindNetworkReg.
func (g *GSM) NetworkStatus(ctx context.Context) (bool, int, error) {
	i, err := g.Command(ctx, "+CREG?")
	if err != nil {
		return false, 0, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CREG") {
			fields := atparse.SplitFields(info.TrimPrefix(l, "+CREG"))
			if len(fields) < 2 {
				continue
			}
			stat, err := strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil {
				continue
			}
			registered := stat == 1 || stat == 5
			g.dispatch.Fire(event.Event{Kind: event.KindNetworkReg, Registered: registered})
			return registered, stat, nil
		}
	}
	return false, 0, ErrMalformedResponse
}

// OperatorInfo reads the current operator (+COPS?), firing
// event.KindOperator.
func (g *GSM) OperatorInfo(ctx context.Context) (string, error) {
	i, err := g.Command(ctx, "+COPS?")
	if err != nil {
		return "", err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+COPS") {
			fields := atparse.SplitFields(info.TrimPrefix(l, "+COPS"))
			name := ""
			if len(fields) >= 3 {
				name = atparse.QuotedString(fields[2])
			}
			g.dispatch.Fire(event.Event{Kind: event.KindOperator, OperatorName: name})
			return name, nil
		}
	}
	return "", ErrMalformedResponse
}

// SetOperator forces selection of a specific operator by numeric id
// (+COPS=1,2,<id>), or selects automatic mode when id is empty.
func (g *GSM) SetOperator(ctx context.Context, id string) error {
	if id == "" {
		_, err := g.Command(ctx, "+COPS=0")
		return err
	}
	_, err := g.Command(ctx, "+COPS=1,2,"+id)
	return err
}

// OperatorScanResult is a single entry in a +COPS=? scan.
type OperatorScanResult struct {
	Status int
	Name   string
	ID     string
	RAT    int
}

// ScanOperators runs a full operator scan (+COPS=?), firing
// event.KindOperatorScanResult once per discovered entry.
func (g *GSM) ScanOperators(ctx context.Context) ([]OperatorScanResult, error) {
	i, err := g.Command(ctx, "+COPS=?")
	if err != nil {
		return nil, err
	}
	var results []OperatorScanResult
	for _, l := range i {
		if !info.HasPrefix(l, "+COPS") {
			continue
		}
		body := info.TrimPrefix(l, "+COPS")
		for _, entry := range splitParenGroups(body) {
			fields := atparse.SplitFields(entry)
			if len(fields) < 4 {
				continue
			}
			status, _ := strconv.Atoi(strings.TrimSpace(fields[0]))
			rat, _ := strconv.Atoi(strings.TrimSpace(fields[3]))
			r := OperatorScanResult{
				Status: status,
				Name:   atparse.QuotedString(fields[1]),
				ID:     atparse.QuotedString(fields[2]),
				RAT:    rat,
			}
			results = append(results, r)
			g.dispatch.Fire(event.Event{
				Kind:         event.KindOperatorScanResult,
				OperatorName: r.Name,
				OperatorID:   r.ID,
			})
		}
	}
	return results, nil
}

// splitParenGroups splits a +COPS=? body of the form
// "(s1,n1,i1,r1),(s2,n2,i2,r2),...,,(modes),(formats)" into the
// individual "(...)" groups whose first field is numeric (the operator
// entries, as opposed to the trailing mode/format lists).
func splitParenGroups(body string) []string {
	var groups []string
	depth := 0
	start := -1
	for i, r := range body {
		switch r {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 && start >= 0 {
				groups = append(groups, body[start:i])
				start = -1
			}
		}
	}
	var entries []string
	for _, g := range groups {
		fields := atparse.SplitFields(g)
		if len(fields) >= 4 {
			if _, err := strconv.Atoi(strings.TrimSpace(fields[0])); err == nil {
				entries = append(entries, g)
			}
		}
	}
	return entries
}
