package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelJobEvents = "job_events"
)

// Event types
const (
	TypeJobUpdated = "job_updated"
	TypeJobRemoved = "job_removed"
)

// JobEvent is one lifecycle notification, fanned out to browser sessions
// over WebSocket.
type JobEvent struct {
	Type            string `json:"type"`
	JobID           string `json:"job_id"`
	OwnerID         string `json:"owner_id"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	TotalItems      int    `json:"total_items"`
	ProcessedItems  int    `json:"processed_items"`
	FailedItems     int    `json:"failed_items"`
	ProgressPercent int    `json:"progress_percent"`
	CurrentItem     string `json:"current_item,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Publisher pushes job events into Redis.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEvent publishes one job event.
func (p *Publisher) PublishEvent(ctx context.Context, event *JobEvent) error {
	if event.Type == "" {
		event.Type = TypeJobUpdated
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	return p.client.Publish(ctx, ChannelJobEvents, data).Err()
}

// Subscriber consumes job events from Redis.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe blocks, invoking the handler per event, until ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*JobEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelJobEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // skip malformed payloads
			}

			handler(&event)
		}
	}
}
