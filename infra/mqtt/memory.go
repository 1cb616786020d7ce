package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
)

// Message is a payload captured by MemoryBus.
type Message struct {
	Topic   string
	Payload []byte
}

// MemoryBus is an in-process Bus. Published messages are delivered
// synchronously to matching subscribers and kept for inspection.
type MemoryBus struct {
	mu      sync.Mutex
	subs    map[string]coremqtt.Handler
	msgs    []Message
	offline bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]coremqtt.Handler{}}
}

// SetOffline makes Publish fail with ErrMessagingUnavailable.
func (m *MemoryBus) SetOffline(off bool) {
	m.mu.Lock()
	m.offline = off
	m.mu.Unlock()
}

func (m *MemoryBus) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.offline
}

func (m *MemoryBus) Subscribe(filter string, h coremqtt.Handler) error {
	m.mu.Lock()
	m.subs[filter] = h
	m.mu.Unlock()
	return nil
}

func (m *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", coremqtt.ErrMessagingUnavailable, topic)
	}
	p := append([]byte(nil), payload...)
	m.msgs = append(m.msgs, Message{Topic: topic, Payload: p})
	var hs []coremqtt.Handler
	for f, h := range m.subs {
		if coremqtt.Match(f, topic) {
			hs = append(hs, h)
		}
	}
	m.mu.Unlock()
	for _, h := range hs {
		h(topic, p)
	}
	return nil
}

// Messages returns captured messages whose topic matches filter.
func (m *MemoryBus) Messages(filter string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.msgs {
		if coremqtt.Match(filter, msg.Topic) {
			out = append(out, msg)
		}
	}
	return out
}
