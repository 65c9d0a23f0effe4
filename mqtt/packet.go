// Package mqtt implements a minimal MQTT 3.1.1 client over a TCP
// netconn.NetConn, grounded on the original engine's
// lwcell_mqtt_client_api.c: CONNECT/CONNACK, PUBLISH, SUBSCRIBE/SUBACK,
// UNSUBSCRIBE/UNSUBACK, PINGREQ/PINGRESP and DISCONNECT, encoded and
// parsed by hand since the spec carries no MQTT library dependency for
// the pack to ground one on.
package mqtt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// QoS is the MQTT quality-of-service level.
type QoS byte

const (
	QoS0 QoS = 0
	QoS1 QoS = 1
	QoS2 QoS = 2
)

type packetType byte

const (
	ptCONNECT     packetType = 1
	ptCONNACK     packetType = 2
	ptPUBLISH     packetType = 3
	ptPUBACK      packetType = 4
	ptSUBSCRIBE   packetType = 8
	ptSUBACK      packetType = 9
	ptUNSUBSCRIBE packetType = 10
	ptUNSUBACK    packetType = 11
	ptPINGREQ     packetType = 12
	ptPINGRESP    packetType = 13
	ptDISCONNECT  packetType = 14
)

// ErrMalformedPacket indicates a packet read from the connection could
// not be parsed as valid MQTT.
var ErrMalformedPacket = errors.New("mqtt: malformed packet")

// ClientInfo configures a CONNECT packet.
type ClientInfo struct {
	ClientID string
	User     string
	Pass     string
	KeepAlive uint16 // seconds
	CleanSession bool
}

func encodeString(buf *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func encodeRemainingLength(n int) []byte {
	var out []byte
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out
}

func fixedHeader(pt packetType, flags byte, remaining []byte) []byte {
	h := []byte{byte(pt)<<4 | flags}
	h = append(h, remaining...)
	return h
}

// encodeConnect builds a CONNECT packet per MQTT 3.1.1 §3.1.
func encodeConnect(info ClientInfo) []byte {
	var payload bytes.Buffer
	encodeString(&payload, info.ClientID)
	if info.User != "" {
		encodeString(&payload, info.User)
	}
	if info.Pass != "" {
		encodeString(&payload, info.Pass)
	}

	var flags byte
	if info.CleanSession {
		flags |= 0x02
	}
	if info.User != "" {
		flags |= 0x80
	}
	if info.Pass != "" {
		flags |= 0x40
	}

	var variable bytes.Buffer
	encodeString(&variable, "MQTT")
	variable.WriteByte(4) // protocol level 4 == 3.1.1
	variable.WriteByte(flags)
	var ka [2]byte
	binary.BigEndian.PutUint16(ka[:], info.KeepAlive)
	variable.Write(ka[:])

	body := append(variable.Bytes(), payload.Bytes()...)
	return append(fixedHeader(ptCONNECT, 0, encodeRemainingLength(len(body))), body...)
}

// encodePublish builds a PUBLISH packet. packetID is ignored for QoS0.
func encodePublish(topic string, payload []byte, qos QoS, retain bool, packetID uint16) []byte {
	var flags byte
	if retain {
		flags |= 0x01
	}
	flags |= byte(qos) << 1

	var body bytes.Buffer
	encodeString(&body, topic)
	if qos > QoS0 {
		var id [2]byte
		binary.BigEndian.PutUint16(id[:], packetID)
		body.Write(id[:])
	}
	body.Write(payload)

	return append(fixedHeader(ptPUBLISH, flags, encodeRemainingLength(body.Len())), body.Bytes()...)
}

func encodeSubscribe(topic string, qos QoS, packetID uint16) []byte {
	var body bytes.Buffer
	var id [2]byte
	binary.BigEndian.PutUint16(id[:], packetID)
	body.Write(id[:])
	encodeString(&body, topic)
	body.WriteByte(byte(qos))
	return append(fixedHeader(ptSUBSCRIBE, 0x02, encodeRemainingLength(body.Len())), body.Bytes()...)
}

func encodeUnsubscribe(topic string, packetID uint16) []byte {
	var body bytes.Buffer
	var id [2]byte
	binary.BigEndian.PutUint16(id[:], packetID)
	body.Write(id[:])
	encodeString(&body, topic)
	return append(fixedHeader(ptUNSUBSCRIBE, 0x02, encodeRemainingLength(body.Len())), body.Bytes()...)
}

func encodePingreq() []byte {
	return fixedHeader(ptPINGREQ, 0, []byte{0})
}

func encodeDisconnect() []byte {
	return fixedHeader(ptDISCONNECT, 0, []byte{0})
}

// decodedPacket is a parsed inbound packet.
type decodedPacket struct {
	typ     packetType
	flags   byte
	payload []byte
}

// decodePacket parses one packet from the front of buf, returning the
// packet, the number of bytes consumed, and whether a complete packet
// was available.
func decodePacket(buf []byte) (decodedPacket, int, bool) {
	if len(buf) < 2 {
		return decodedPacket{}, 0, false
	}
	pt := packetType(buf[0] >> 4)
	flags := buf[0] & 0x0f

	remaining, n, ok := decodeRemainingLength(buf[1:])
	if !ok {
		return decodedPacket{}, 0, false
	}
	total := 1 + n + remaining
	if len(buf) < total {
		return decodedPacket{}, 0, false
	}
	return decodedPacket{typ: pt, flags: flags, payload: buf[1+n : total]}, total, true
}

func decodeRemainingLength(buf []byte) (int, int, bool) {
	multiplier := 1
	value := 0
	for i := 0; i < len(buf) && i < 4; i++ {
		b := buf[i]
		value += int(b&0x7f) * multiplier
		if b&0x80 == 0 {
			return value, i + 1, true
		}
		multiplier *= 128
	}
	return 0, 0, false
}

// Publication is an inbound PUBLISH delivered to the caller.
type Publication struct {
	Topic   string
	Payload []byte
	QoS     QoS
}

func parsePublish(p decodedPacket) (Publication, uint16, error) {
	if len(p.payload) < 2 {
		return Publication{}, 0, ErrMalformedPacket
	}
	topicLen := int(binary.BigEndian.Uint16(p.payload[:2]))
	if len(p.payload) < 2+topicLen {
		return Publication{}, 0, ErrMalformedPacket
	}
	topic := string(p.payload[2 : 2+topicLen])
	rest := p.payload[2+topicLen:]

	qos := QoS((p.flags >> 1) & 0x03)
	var packetID uint16
	if qos > QoS0 {
		if len(rest) < 2 {
			return Publication{}, 0, ErrMalformedPacket
		}
		packetID = binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
	}
	return Publication{Topic: topic, Payload: append([]byte(nil), rest...), QoS: qos}, packetID, nil
}

func encodePuback(packetID uint16) []byte {
	var id [2]byte
	binary.BigEndian.PutUint16(id[:], packetID)
	return append(fixedHeader(ptPUBACK, 0, encodeRemainingLength(2)), id[:]...)
}

// connackResult decodes the return code of a CONNACK payload.
func connackResult(p decodedPacket) error {
	if p.typ != ptCONNACK || len(p.payload) < 2 {
		return ErrMalformedPacket
	}
	code := p.payload[1]
	if code != 0 {
		return fmt.Errorf("mqtt: connect refused, code %d", code)
	}
	return nil
}
