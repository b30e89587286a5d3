// Package pubsub implements a Google Cloud Pub/Sub publisher for job
// completion events.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Publisher wraps a Pub/Sub client and publishes to named topics.
type Publisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New creates a Publisher for the provided client.
func New(client *pubsub.Client) *Publisher {
	return &Publisher{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}
}

// Publish marshals the payload to JSON and publishes it to the topic,
// blocking until the server acknowledges the message.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes outstanding messages on every topic handle.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		t.Stop()
	}
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}
