package mqtt

import (
	"context"
	"errors"
	"sync"

	"github.com/cellmodem/engine/netconn"
)

// ErrNotConnected indicates an operation requiring an open session was
// attempted before Connect or after Close.
var ErrNotConnected = errors.New("mqtt: not connected")

// Client is a sequential, single-goroutine MQTT client built on a TCP
// netconn.NetConn, mirroring the original engine's
// lwcell_mqtt_client_api: Connect/Publish/Subscribe/Receive, each
// blocking the caller.
type Client struct {
	nc *netconn.NetConn

	mu        sync.Mutex
	connected bool
	nextID    uint16
	rxBuf     []byte
}

// New creates a Client that will open its TCP connection through nc
// when Connect is called.
func New(nc *netconn.NetConn) *Client {
	return &Client{nc: nc}
}

// Connect opens the TCP connection to host:port and performs the MQTT
// CONNECT/CONNACK handshake.
func (c *Client) Connect(ctx context.Context, host string, port int, info ClientInfo) error {
	if err := c.nc.Connect(ctx, host, port); err != nil {
		return err
	}
	if _, err := c.nc.Write(ctx, encodeConnect(info)); err != nil {
		return err
	}
	if err := c.nc.Flush(ctx); err != nil {
		return err
	}

	p, err := c.readPacket()
	if err != nil {
		return err
	}
	if err := connackResult(p); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// IsConnected reports whether the CONNECT handshake has completed and
// Close has not been called.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) nextPacketID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	return c.nextID
}

// Publish sends a PUBLISH with the given topic, payload, QoS and retain
// flag.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	pkt := encodePublish(topic, payload, qos, retain, c.nextPacketID())
	if _, err := c.nc.Write(ctx, pkt); err != nil {
		return err
	}
	return c.nc.Flush(ctx)
}

// Subscribe sends a SUBSCRIBE for topic at qos.
func (c *Client) Subscribe(ctx context.Context, topic string, qos QoS) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	pkt := encodeSubscribe(topic, qos, c.nextPacketID())
	if _, err := c.nc.Write(ctx, pkt); err != nil {
		return err
	}
	if err := c.nc.Flush(ctx); err != nil {
		return err
	}
	p, err := c.readPacket()
	if err != nil {
		return err
	}
	if p.typ != ptSUBACK {
		return ErrMalformedPacket
	}
	return nil
}

// Unsubscribe sends an UNSUBSCRIBE for topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	pkt := encodeUnsubscribe(topic, c.nextPacketID())
	if _, err := c.nc.Write(ctx, pkt); err != nil {
		return err
	}
	if err := c.nc.Flush(ctx); err != nil {
		return err
	}
	p, err := c.readPacket()
	if err != nil {
		return err
	}
	if p.typ != ptUNSUBACK {
		return ErrMalformedPacket
	}
	return nil
}

// Ping sends a PINGREQ and waits for PINGRESP, for keep-alive.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if _, err := c.nc.Write(ctx, encodePingreq()); err != nil {
		return err
	}
	if err := c.nc.Flush(ctx); err != nil {
		return err
	}
	p, err := c.readPacket()
	if err != nil {
		return err
	}
	if p.typ != ptPINGRESP {
		return ErrMalformedPacket
	}
	return nil
}

// Receive blocks (per the netconn's receive timeout) for the next
// PUBLISH, acknowledging QoS1 deliveries automatically.
func (c *Client) Receive(ctx context.Context) (Publication, error) {
	for {
		p, err := c.readPacket()
		if err != nil {
			return Publication{}, err
		}
		if p.typ != ptPUBLISH {
			continue
		}
		pub, packetID, err := parsePublish(p)
		if err != nil {
			return Publication{}, err
		}
		if pub.QoS == QoS1 {
			if _, err := c.nc.Write(ctx, encodePuback(packetID)); err != nil {
				return Publication{}, err
			}
			_ = c.nc.Flush(ctx)
		}
		return pub, nil
	}
}

// Close sends DISCONNECT and tears down the underlying connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	_, _ = c.nc.Write(ctx, encodeDisconnect())
	_ = c.nc.Flush(ctx)
	return c.nc.Close(ctx)
}

// readPacket pulls pbufs from the netconn until a complete MQTT packet
// can be decoded from the accumulated buffer.
func (c *Client) readPacket() (decodedPacket, error) {
	for {
		if p, n, ok := decodePacket(c.rxBuf); ok {
			c.rxBuf = c.rxBuf[n:]
			return p, nil
		}
		b, err := c.nc.Receive()
		if err != nil {
			return decodedPacket{}, err
		}
		c.rxBuf = append(c.rxBuf, b.Take()...)
	}
}
