// Package pubsub publishes JSON payloads to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// KindAttribute carries the payload kind on every message.
const KindAttribute = "kind"

// Config selects the topic.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Dial connects to Pub/Sub and returns a Publisher for cfg.Topic together
// with a function that flushes pending messages and closes the client.
func Dial(ctx context.Context, cfg Config) (*Publisher, func() error, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, nil, errors.New("pubsub.project_id and pubsub.topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := client.Publisher(cfg.Topic)
	closeFn := func() error {
		pub.Stop()
		if err := client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
		return nil
	}
	return New(pub), closeFn, nil
}

// Publish marshals the payload to JSON and publishes it to the topic, tagged
// with kind.
func (p *Publisher) Publish(ctx context.Context, kind string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	if kind != "" {
		msg.Attributes = map[string]string{KindAttribute: kind}
	}

	result := p.publisher.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
