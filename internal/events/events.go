// Package events publishes campaign lifecycle notifications to an optional
// Redis Pub/Sub channel for real-time monitoring (the watch command).
//
// The stream is advisory only: the campaign root on the filesystem remains
// the single source of truth, and a publish failure never fails a campaign.
// Channels are namespaced by instance name so multiple EmailMakers
// deployments can share one Redis server.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// Event types emitted over the campaign events channel.
const (
	TypeCampaignCreated   = "campaign_created"
	TypeStageCompleted    = "stage_completed"
	TypeCampaignCompleted = "campaign_completed"
	TypeCampaignFailed    = "campaign_failed"
)

// Event is one campaign lifecycle notification.
type Event struct {
	Type          string         `json:"type"`
	CampaignID    string         `json:"campaign_id"`
	CorrelationID string         `json:"correlation_id"`
	Phase         campaign.Phase `json:"phase"`
	Stage         string         `json:"stage,omitempty"`   // Set for stage_completed
	Message       string         `json:"message,omitempty"` // Set for campaign_failed
	TimestampMs   int64          `json:"timestamp_ms"`
}

// Channel returns the Pub/Sub channel name for an instance.
// Pattern: emailmakers:{instance}:campaign_events
func Channel(instance string) string {
	return fmt.Sprintf("emailmakers:%s:campaign_events", instance)
}

// Publisher emits campaign events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher discards every event. Used when no Redis address is
// configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// RedisPublisher publishes events to the instance's campaign channel.
type RedisPublisher struct {
	rdb      *redis.Client
	instance string
}

// NewRedisPublisher connects a publisher to the given Redis address.
func NewRedisPublisher(addr, instance string) (*RedisPublisher, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisPublisher{
		rdb:      redis.NewClient(&redis.Options{Addr: addr}),
		instance: instance,
	}, nil
}

// Publish marshals the event and publishes it. The timestamp is stamped
// here if the caller left it zero.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.TimestampMs == 0 {
		ev.TimestampMs = time.Now().UnixMilli()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, Channel(p.instance), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the Redis connection. Implements io.Closer.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// PublishBestEffort publishes and logs a failure instead of returning it.
// The event stream is advisory; campaign progress never blocks on it.
func PublishBestEffort(ctx context.Context, pub Publisher, ev Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Printf("[Events] Failed to publish %s for campaign %s: %v", ev.Type, ev.CampaignID, err)
	}
}

// Subscription delivers campaign events until closed.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	errs   chan error
}

// Events returns the event channel. Closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Errors returns the error channel for non-fatal decode failures.
func (s *Subscription) Errors() <-chan error { return s.errs }

// Close terminates the subscription and its goroutine.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe opens a subscription to an instance's campaign events.
func Subscribe(ctx context.Context, addr, instance string) (*Subscription, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pubsub := rdb.Subscribe(ctx, Channel(instance))
	// Confirm the subscription before returning so no event is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to subscribe to campaign events: %w", err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
	}

	go func() {
		defer close(sub.events)
		defer close(sub.errs)
		defer rdb.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case sub.errs <- fmt.Errorf("undecodable event: %w", err):
					default:
					}
					continue
				}
				select {
				case sub.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}
