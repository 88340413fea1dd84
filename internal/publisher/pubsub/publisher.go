// Package pubsub announces published builds on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher sends JSON payloads to one topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New wraps topic.
func New(topic *pubsub.Topic) (*Publisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic is required")
	}
	return &Publisher{topic: topic}, nil
}

// Publish marshals payload to JSON, publishes it and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"contentType": "application/json"},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages.
func (p *Publisher) Close() {
	p.topic.Stop()
}
