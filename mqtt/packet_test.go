package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodePublishRoundTrip(t *testing.T) {
	pkt := encodePublish("topic/a", []byte("payload"), QoS1, false, 42)
	p, n, ok := decodePacket(pkt)
	assert.True(t, ok)
	assert.Equal(t, len(pkt), n)
	assert.Equal(t, ptPUBLISH, p.typ)

	pub, packetID, err := parsePublish(p)
	assert.Nil(t, err)
	assert.Equal(t, "topic/a", pub.Topic)
	assert.Equal(t, []byte("payload"), pub.Payload)
	assert.Equal(t, QoS1, pub.QoS)
	assert.Equal(t, uint16(42), packetID)
}

func TestDecodePacketIncomplete(t *testing.T) {
	pkt := encodePublish("t", []byte("0123456789"), QoS0, false, 0)
	_, _, ok := decodePacket(pkt[:len(pkt)-3])
	assert.False(t, ok)
}

func TestRemainingLengthMultiByte(t *testing.T) {
	big := make([]byte, 200)
	pkt := encodePublish("t", big, QoS0, false, 0)
	p, n, ok := decodePacket(pkt)
	assert.True(t, ok)
	assert.Equal(t, len(pkt), n)
	pub, _, err := parsePublish(p)
	assert.Nil(t, err)
	assert.Equal(t, 200, len(pub.Payload))
}

func TestConnackResult(t *testing.T) {
	ok := decodedPacket{typ: ptCONNACK, payload: []byte{0, 0}}
	assert.Nil(t, connackResult(ok))

	refused := decodedPacket{typ: ptCONNACK, payload: []byte{0, 5}}
	assert.NotNil(t, connackResult(refused))
}

func TestEncodeConnectContainsClientID(t *testing.T) {
	pkt := encodeConnect(ClientInfo{ClientID: "dev1", CleanSession: true, KeepAlive: 60})
	p, _, ok := decodePacket(pkt)
	assert.True(t, ok)
	assert.Equal(t, ptCONNECT, p.typ)
}
