// Package events announces publish outcomes on an EventBridge bus so other
// systems (shop dashboards, alerting) can react without polling the log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Source is the EventBridge source of every event emitted here.
const Source = "catalog-post-automation"

// Detail types.
const (
	TypePostPublished = "PostPublished"
	TypePostFailed    = "PostFailed"
)

// PostEvent is the detail payload for both detail types.
type PostEvent struct {
	RunID       string    `json:"runId"`
	ProductID   string    `json:"productId"`
	ContainerID string    `json:"containerId,omitempty"`
	MediaID     string    `json:"mediaId,omitempty"`
	Images      int       `json:"images"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier receives publish outcomes.
type Notifier interface {
	PostPublished(ctx context.Context, e PostEvent) error
	PostFailed(ctx context.Context, e PostEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PostPublished(context.Context, PostEvent) error { return nil }
func (Nop) PostFailed(context.Context, PostEvent) error    { return nil }

// PutEventsAPI is the subset of *eventbridge.Client used here.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Bus sends events to an EventBridge bus.
type Bus struct {
	client  PutEventsAPI
	busName string
}

var _ Notifier = (*Bus)(nil)

// NewBus creates a Bus. An empty busName targets the default bus.
func NewBus(client PutEventsAPI, busName string) *Bus {
	return &Bus{client: client, busName: busName}
}

// PostPublished implements Notifier.
func (b *Bus) PostPublished(ctx context.Context, e PostEvent) error {
	return b.emit(ctx, TypePostPublished, e)
}

// PostFailed implements Notifier.
func (b *Bus) PostFailed(ctx context.Context, e PostEvent) error {
	return b.emit(ctx, TypePostFailed, e)
}

func (b *Bus) emit(ctx context.Context, detailType string, e PostEvent) error {
	detail, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", detailType, err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(detail)),
	}
	if b.busName != "" {
		entry.EventBusName = aws.String(b.busName)
	}

	result, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("productId", e.ProductID).Str("eventType", detailType).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("productId", e.ProductID).
					Str("eventType", detailType).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("productId", e.ProductID).Str("eventType", detailType).Msg("Event emitted to EventBridge")
	return nil
}
