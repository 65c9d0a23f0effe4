package at

import (
	"bufio"
	"strconv"
	"strings"
)

// Sentinel bytes used to tag tokens produced by scanTokens that are not
// plain CRLF-terminated lines. Neither byte can appear in AT text, which
// is restricted to printable ASCII plus CR/LF.
const (
	sentinelFrameHeader = 0x01 // "+RECEIVE,<id>,<len>:" header, payload attached
	sentinelNone        = 0x00 // ordinary line, no tag (never written to wire)
)

// receivePrefix is the framing URC that precedes raw socket payload on
// SIM800/SIM7000-family modems: "+RECEIVE,<id>,<len>:<payload>" where
// payload is exactly <len> binary bytes with no escaping and no CRLF
// terminator of its own.
const receivePrefix = "+RECEIVE,"

// scanTokens is a bufio.SplitFunc that extends the teacher's scanLines
// with recognition of socket-receive framing: once a "+RECEIVE,<id>,<len>:"
// header is seen, the following <len> bytes are returned as a single
// frame token (header+payload, tagged with sentinelFrameHeader) instead
// of being split into lines, so binary payload data is never mistaken for
// AT text.
func scanTokens(data []byte, atEOF bool) (advance int, token []byte, err error) {
	// SMS prompt special case - no CR at prompt.
	if len(data) >= 1 && data[0] == '>' {
		i := 1
		for ; i < len(data) && data[i] == ' '; i++ {
		}
		return i, data[0:1], nil
	}

	if strings.HasPrefix(string(data), receivePrefix) {
		headerLen, id, payloadLen, ok, needMore := matchReceiveHeader(data)
		if needMore && !atEOF {
			return 0, nil, nil
		}
		if ok {
			total := headerLen + payloadLen
			if len(data) >= total {
				tok := make([]byte, 1+total)
				tok[0] = sentinelFrameHeader
				copy(tok[1:], data[:total])
				return total, tok, nil
			}
			if !atEOF {
				return 0, nil, nil
			}
			_ = id
		}
	}
	return bufio.ScanLines(data, atEOF)
}

// matchReceiveHeader parses a "+RECEIVE,<id>,<len>:" header at the start
// of data. headerLen is the number of bytes up to and including the
// trailing colon. needMore is true when data may be a valid header but
// the terminating colon has not yet arrived.
func matchReceiveHeader(data []byte) (headerLen, id, payloadLen int, ok, needMore bool) {
	const searchLimit = 64
	limit := len(data)
	if limit > searchLimit {
		limit = searchLimit
	}
	idx := strings.IndexByte(string(data[:limit]), ':')
	if idx == -1 {
		return 0, 0, 0, false, limit < searchLimit
	}
	body := string(data[len(receivePrefix):idx])
	fields := strings.SplitN(body, ",", 2)
	if len(fields) != 2 {
		return 0, 0, 0, false, false
	}
	idVal, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, 0, false, false
	}
	lenVal, err := strconv.Atoi(fields[1])
	if err != nil || lenVal < 0 {
		return 0, 0, 0, false, false
	}
	return idx + 1, idVal, lenVal, true, false
}

// frameRecord is the parsed form of a sentinelFrameHeader token.
type frameRecord struct {
	connID  int
	payload []byte
}

// parseFrameToken splits a sentinelFrameHeader-tagged token into the
// connection id and payload. The caller strips the leading sentinel
// byte (produced by scanTokens) before passing the line in.
func parseFrameToken(line string) (frameRecord, bool) {
	idx := strings.IndexByte(line, ':')
	if idx == -1 || !strings.HasPrefix(line, receivePrefix) {
		return frameRecord{}, false
	}
	body := line[len(receivePrefix):idx]
	fields := strings.SplitN(body, ",", 2)
	if len(fields) != 2 {
		return frameRecord{}, false
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return frameRecord{}, false
	}
	return frameRecord{connID: id, payload: []byte(line[idx+1:])}, true
}
