package gsm

import "fmt"

// Family factors the small, model-specific parts of the AT dialect out of
// the otherwise generic command groups: the exact sequence of AT
// sub-commands a network attach or connection start expands into, and a
// couple of argument-encoding details that differ between SIM800-class 2G
// modems and SIM7000/7020-class NB-IoT modems.
//
// This is the Go rendition of the "dynamic dispatch over device
// families" design note: a small record of functions the engine is
// parametric over, rather than a compile-time #if switch.
type Family interface {
	// Name identifies the family, for logging.
	Name() string

	// NetworkAttachScript returns the ordered AT sub-commands (without the
	// "AT" prefix) that a network-attach command group expands into.
	NetworkAttachScript(apn, user, pass string) []string

	// NetworkDetachScript returns the sub-commands for a network detach.
	NetworkDetachScript() []string

	// ConnStartScript returns the sub-commands to open a connection,
	// given its 0-based connection id, protocol ("TCP"/"UDP"), remote
	// host and port.
	ConnStartScript(connID int, proto, host string, port int) []string

	// ConnSendCmd returns the AT command (without "AT" prefix) used to
	// begin sending n bytes on connID; the caller waits for the ">"
	// prompt, writes the raw payload, then waits for "SEND OK"/"SEND FAIL".
	ConnSendCmd(connID, n int) string

	// ConnCloseCmd returns the AT command used to close connID.
	ConnCloseCmd(connID int) string
}

// SIM800 is the Family for SIM800/SIM900-class 2G modems.
type SIM800 struct{}

// Name implements Family.
func (SIM800) Name() string { return "SIM800" }

// NetworkAttachScript implements Family, preserving the sub-command
// ordering byte-for-byte as specified: CGACT=0; CGACT=1; CGATT=0;
// CGATT=1; CIPSHUT; CIPMUX=1; CIPRXGET=1; CSTT=apn,user,pass; CIICR;
// CIFSR.
func (SIM800) NetworkAttachScript(apn, user, pass string) []string {
	return []string{
		"+CGACT=0",
		"+CGACT=1",
		"+CGATT=0",
		"+CGATT=1",
		"+CIPSHUT",
		"+CIPMUX=1",
		"+CIPRXGET=1",
		fmt.Sprintf("+CSTT=%q,%q,%q", apn, user, pass),
		"+CIICR",
		"+CIFSR",
	}
}

// NetworkDetachScript implements Family.
func (SIM800) NetworkDetachScript() []string {
	return []string{"+CIPSHUT", "+CGATT=0"}
}

// ConnStartScript implements Family.
func (SIM800) ConnStartScript(connID int, proto, host string, port int) []string {
	return []string{
		fmt.Sprintf("+CIPSTART=%d,%q,%q,%d", connID, proto, host, port),
	}
}

// ConnSendCmd implements Family.
func (SIM800) ConnSendCmd(connID, n int) string {
	return fmt.Sprintf("+CIPSEND=%d,%d", connID, n)
}

// ConnCloseCmd implements Family.
func (SIM800) ConnCloseCmd(connID int) string {
	return fmt.Sprintf("+CIPCLOSE=%d", connID)
}

// SIM7000 is the Family for SIM7000/7020-class NB-IoT modems. The PDP
// context activation path differs (CNACT instead of CSTT/CIICR) but the
// connection and SMS/call/phonebook dialects are close enough to SIM800
// to share the rest of the engine unmodified.
type SIM7000 struct{}

// Name implements Family.
func (SIM7000) Name() string { return "SIM7000" }

// NetworkAttachScript implements Family.
func (SIM7000) NetworkAttachScript(apn, user, pass string) []string {
	steps := []string{
		"+CGATT=1",
		fmt.Sprintf("+CNCFG=0,1,%q,%q,%q", apn, user, pass),
		"+CNACT=0,1",
	}
	return steps
}

// NetworkDetachScript implements Family.
func (SIM7000) NetworkDetachScript() []string {
	return []string{"+CNACT=0,0", "+CGATT=0"}
}

// ConnStartScript implements Family.
func (SIM7000) ConnStartScript(connID int, proto, host string, port int) []string {
	return []string{
		fmt.Sprintf("+CIPOPEN=%d,%q,%q,%d", connID, proto, host, port),
	}
}

// ConnSendCmd implements Family.
func (SIM7000) ConnSendCmd(connID, n int) string {
	return fmt.Sprintf("+CIPSEND=%d,%d", connID, n)
}

// ConnCloseCmd implements Family.
func (SIM7000) ConnCloseCmd(connID int) string {
	return fmt.Sprintf("+CIPCLOSE=%d", connID)
}
