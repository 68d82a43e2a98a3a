package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, string, Message) error { return f.err }

func TestChannels(t *testing.T) {
	assert.Equal(t, "user-u1", UserChannel("u1"))
	assert.Equal(t, "event-e1-gate", GateChannel("e1"))
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	first, second := &Memory{}, &Memory{}
	boom := errors.New("boom")

	m := Multi{first, failingPublisher{err: boom}, second}
	err := m.Publish(ctx, "user-u1", Message{"type": TypeTicketsIssued})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Sent(), 1)
	assert.Len(t, second.Sent(), 1)
}

func TestMemory_OfType(t *testing.T) {
	ctx := context.Background()
	m := &Memory{}
	require.NoError(t, m.Publish(ctx, "a", Message{"type": TypeGateScan}))
	require.NoError(t, m.Publish(ctx, "b", Message{"type": TypeTicketsIssued}))
	require.NoError(t, m.Publish(ctx, "c", Message{"type": TypeGateScan}))

	scans := m.OfType(TypeGateScan)
	require.Len(t, scans, 2)
	assert.Equal(t, "a", scans[0].Channel)
	assert.Equal(t, "c", scans[1].Channel)
	assert.NoError(t, Nop{}.Publish(ctx, "x", Message{}))
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		expected string
	}{
		{"issued", Message{"type": TypeTicketsIssued}, "ticket.issued"},
		{"accepted scan", Message{"type": TypeGateScan, "outcome": "ACCEPTED"}, "ticket.redeemed"},
		{"rejected scan", Message{"type": TypeGateScan, "outcome": "REJECTED"}, "ticket.rejected"},
		{"other", Message{"type": "custom"}, "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoutingKey(tt.msg))
		})
	}
}

type capturedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []capturedPublish
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, capturedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchange: "tickets"}

	err := p.Publish(context.Background(), "user-u1", Message{"type": TypeTicketsIssued, "order_id": "o1"})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "tickets", got.exchange)
	assert.Equal(t, "ticket.issued", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, "user-u1", got.msg.Headers["channel"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "o1", body["order_id"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	p := &AMQPPublisher{channel: &fakeChannel{err: amqp.ErrClosed}, exchange: "tickets"}

	err := p.Publish(context.Background(), "x", Message{"type": TypeGateScan})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
