package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/medilab/platform/internal/shared/config"
)

// Event types published by the lab pipeline.
const (
	TypeOrderCreated   = "lab.order.created"
	TypeOrderModified  = "lab.order.modified"
	TypeOrderDeleted   = "lab.order.deleted"
	TypeOrderRelinked  = "lab.order.relinked"
	TypeResultIngested = "lab.result.ingested"
	TypeResultReviewed = "lab.result.reviewed"
	TypePatientSynced  = "lab.patient.synced"
)

// Event represents a domain event
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Operator  string    `json:"operator,omitempty"`
	Data      any       `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithOperator sets the acting user on the event
func (e Event) WithOperator(operator string) Event {
	e.Operator = operator
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// Publisher is the narrow interface services depend on. Publishing is
// best-effort everywhere: callers log failures and continue.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus provides event publishing and subscription backed by KurrentDB
type Bus struct {
	client *esdb.Client
	prefix string
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(ctx context.Context, cfg config.KurrentDBConfig) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	return &Bus{client: client, prefix: "lab"}, nil
}

func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish publishes an event to the stream derived from its type:
// lab.order.created -> lab-order-created.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	stream := strings.ReplaceAll(event.Type, ".", "-")

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe delivers future events whose type matches the prefix pattern
// (e.g. "lab.result.") to the handler via a catch-up subscription.
func (b *Bus) Subscribe(ctx context.Context, typePrefix string, handler Handler) error {
	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:     esdb.EventFilterType,
			Prefixes: []string{typePrefix},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go b.consume(ctx, sub, handler)
	return nil
}

func (b *Bus) consume(ctx context.Context, sub *esdb.Subscription, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			subEvent := sub.Recv()
			if subEvent.EventAppeared == nil {
				if subEvent.SubscriptionDropped != nil {
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}

			recorded := subEvent.EventAppeared.Event
			if recorded == nil || (len(recorded.EventType) > 0 && recorded.EventType[0] == '$') {
				continue
			}

			var event Event
			if err := json.Unmarshal(recorded.Data, &event); err != nil {
				continue
			}
			if event.ID == "" {
				event.ID = recorded.EventID.String()
			}

			// Handler errors are intentionally not retried here;
			// the audit log is the durable record.
			_ = handler(ctx, event)
		}
	}
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the KurrentDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)

	if err != nil {
		return fmt.Errorf("event store health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
