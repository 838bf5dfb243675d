// Package pubsub publishes download result events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/publisher"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic     *pubsub.Topic
	sessionID string
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic, sessionID string) *Publisher {
	return &Publisher{topic: topic, sessionID: sessionID}
}

// Consume publishes the result as a JSON event and waits for the server ack.
func (p *Publisher) Consume(ctx context.Context, result download.Result) error {
	if p == nil || p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	event := publisher.NewEvent(p.sessionID, result)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"session_id":  p.sessionID,
			"outcome":     event.Outcome(),
			"status_code": strconv.Itoa(event.StatusCode),
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p == nil || p.topic == nil {
		return
	}
	p.topic.Stop()
}
