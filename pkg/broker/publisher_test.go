package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/pkg/logger"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	closed bool
	sent   []published
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeDialer struct {
	channels []*fakeChannel
	fail     bool
}

func (d *fakeDialer) dial(_, _ string) (Channel, error) {
	if d.fail {
		return nil, errors.New("connection refused")
	}
	ch := &fakeChannel{}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeDialer, *time.Time) {
	t.Helper()
	d := &fakeDialer{}
	p, err := NewPublisherWithDialer("amqp://test", "whalecycle.events", d.dial, logger.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	p.lastDial = now
	return p, d, &now
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"cycle", "cycle_started"}, "cycle.cycle_started"},
		{[]string{"cycle", "penalty_changed"}, "cycle.penalty_changed"},
		{[]string{"cycle"}, "cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, RoutingKey(tt.parts...))
		})
	}
}

func TestPublishSendsPersistentJSON(t *testing.T) {
	p, d, _ := newTestPublisher(t)

	payload := map[string]interface{}{"type": "cycle_started", "cycle_id": "c1"}
	require.NoError(t, p.Publish(context.Background(), RoutingKey("cycle", "cycle_started"), payload))

	require.Len(t, d.channels, 1)
	sent := d.channels[0].sent
	require.Len(t, sent, 1)
	assert.Equal(t, "whalecycle.events", sent[0].exchange)
	assert.Equal(t, "cycle.cycle_started", sent[0].key)
	assert.Equal(t, "application/json", sent[0].msg.ContentType)
	assert.Equal(t, amqp.Persistent, sent[0].msg.DeliveryMode)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(sent[0].msg.Body, &body))
	assert.Equal(t, "c1", body["cycle_id"])
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	p, d, _ := newTestPublisher(t)

	err := p.Publish(context.Background(), "cycle.x", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, d.channels[0].sent)
}

func TestPublishAfterClose(t *testing.T) {
	p, d, _ := newTestPublisher(t)
	require.NoError(t, p.Close())
	assert.True(t, d.channels[0].IsClosed())

	err := p.Publish(context.Background(), "cycle.x", "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	assert.Len(t, d.channels, 1, "a closed publisher never redials")
}

func TestReconnectIsThrottled(t *testing.T) {
	p, d, now := newTestPublisher(t)
	ctx := context.Background()

	// broker drops the channel
	d.channels[0].Close()

	*now = now.Add(time.Second)
	err := p.Publish(ctx, "cycle.x", "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrying")
	assert.Len(t, d.channels, 1)

	*now = now.Add(reconnectDelay)
	require.NoError(t, p.Publish(ctx, "cycle.x", "payload"))
	require.Len(t, d.channels, 2)
	assert.Len(t, d.channels[1].sent, 1)

	// a failed redial also starts a new wait
	d.channels[1].Close()
	d.fail = true
	*now = now.Add(reconnectDelay)
	assert.Error(t, p.Publish(ctx, "cycle.x", "payload"))

	d.fail = false
	*now = now.Add(time.Second)
	err = p.Publish(ctx, "cycle.x", "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrying")
	assert.Len(t, d.channels, 2)
}

func TestNewPublisherDialFailure(t *testing.T) {
	d := &fakeDialer{fail: true}
	_, err := NewPublisherWithDialer("amqp://test", "whalecycle.events", d.dial, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
