// Package notify pushes realtime updates to purchasers and door devices.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	TypeTicketsIssued = "tickets_issued"
	TypeGateScan      = "gate_scan"
)

// Message is a JSON-shaped payload. Every message carries a "type" key.
type Message map[string]any

func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func GateChannel(eventID string) string {
	return fmt.Sprintf("event-%s-gate", eventID)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Publish(context.Context, string, Message) error { return nil }

// Multi fans a message out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, channel string, msg Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, channel, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Published struct {
	Channel string
	Message Message
}

// Memory keeps published messages in process. Used in development mode and
// by tests.
type Memory struct {
	mu   sync.Mutex
	sent []Published
}

func (m *Memory) Publish(_ context.Context, channel string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Published{Channel: channel, Message: msg})
	return nil
}

func (m *Memory) Sent() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.sent))
	copy(out, m.sent)
	return out
}

// OfType returns the messages with the given type in publish order.
func (m *Memory) OfType(typ string) []Published {
	var out []Published
	for _, p := range m.Sent() {
		if p.Message.Type() == typ {
			out = append(out, p)
		}
	}
	return out
}
