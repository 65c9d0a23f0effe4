package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cellmodem/engine/conn"
	"github.com/cellmodem/engine/netconn"
	"github.com/cellmodem/engine/sched"
)

// fakeBroker is a Sender that replies to CONNECT with a success CONNACK
// and to SUBSCRIBE with a SUBACK, captured over the raw bytes written via
// SendData, so the test exercises the real packet encoder/decoder.
type fakeBroker struct {
	mgr    *conn.Manager
	connID int
}

func (f *fakeBroker) Command(ctx context.Context, cmd string) ([]string, error) {
	return nil, nil
}

func (f *fakeBroker) SendData(ctx context.Context, cmd string, payload []byte) ([]string, error) {
	p, _, ok := decodePacket(payload)
	if !ok {
		return nil, nil
	}
	switch p.typ {
	case ptCONNECT:
		f.mgr.HandleFrame(f.connID, []byte{byte(ptCONNACK) << 4, 2, 0, 0})
	case ptSUBSCRIBE:
		f.mgr.HandleFrame(f.connID, []byte{byte(ptSUBACK) << 4, 3, 0, 0, 0})
	case ptPINGREQ:
		f.mgr.HandleFrame(f.connID, []byte{byte(ptPINGRESP) << 4, 0})
	}
	return nil, nil
}

func newTestClient() (*Client, *fakeBroker) {
	broker := &fakeBroker{}
	mgr := conn.New(broker, sched.NewWheel(sched.SystemClock{}), conn.WithConnPollInterval(time.Hour))
	broker.mgr = mgr
	nc := netconn.New(mgr, netconn.TypeTCP)
	nc.SetReceiveTimeout(time.Second)
	return New(nc), broker
}

func TestClientConnectSubscribePublish(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	err := c.Connect(ctx, "broker.example.com", 1883, ClientInfo{
		ClientID:     "dev1",
		CleanSession: true,
		KeepAlive:    60,
	})
	assert.Nil(t, err)
	assert.True(t, c.IsConnected())

	assert.Nil(t, c.Subscribe(ctx, "devices/dev1/cmd", QoS0))
	assert.Nil(t, c.Publish(ctx, "devices/dev1/state", []byte("on"), QoS0, false))
	assert.Nil(t, c.Ping(ctx))
}

func TestReceiveDeliversPublish(t *testing.T) {
	c, broker := newTestClient()
	ctx := context.Background()
	assert.Nil(t, c.Connect(ctx, "broker.example.com", 1883, ClientInfo{ClientID: "dev1", CleanSession: true}))

	incoming := encodePublish("devices/dev1/cmd", []byte("reboot"), QoS0, false, 0)
	broker.mgr.HandleFrame(broker.connID, incoming)

	pub, err := c.Receive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "devices/dev1/cmd", pub.Topic)
	assert.Equal(t, []byte("reboot"), pub.Payload)
}

func TestPublishBeforeConnectFails(t *testing.T) {
	c, _ := newTestClient()
	err := c.Publish(context.Background(), "t", []byte("x"), QoS0, false)
	assert.Equal(t, ErrNotConnected, err)
}
