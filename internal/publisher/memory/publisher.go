// Package memory implements a process-local publisher. It serializes
// payloads the same way the Pub/Sub publisher does, so consumers see the
// exact bytes a broker would deliver.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one delivered event: the broker-assigned ID, the topic it was
// published on, and the serialized payload.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher retains every published message in order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload to JSON and appends it under the topic,
// returning a locally assigned message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("local-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns every delivered message in publish order.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// TopicMessages returns the messages delivered on one topic.
func (p *Publisher) TopicMessages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Message
	for _, msg := range p.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}
