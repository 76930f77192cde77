package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubNotifier publishes each message as JSON to a Cloud Pub/Sub topic.
// A push-delivery worker subscribed to the topic fans them out to devices.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier uses credJSON when set and Application Default
// Credentials otherwise.
func NewPubSubNotifier(ctx context.Context, projectID, topicID, credJSON string) (*PubSubNotifier, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub topic is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{client: client, topic: client.Topic(topicID)}, nil
}

func (p *PubSubNotifier) Notify(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"user_id": msg.UserID.String()},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
