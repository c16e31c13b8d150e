// Package events delivers domain events recorded by the user aggregate to
// whatever sends the emails and notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/metrics"
	"github.com/initiumportal/stance/pkg/slogx"
)

// Publisher hands committed domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Message is the wire form of an event.
type Message struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(e domain.Event) (Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return Message{Name: e.EventName(), Payload: payload}, nil
}

// LogPublisher writes events to the request logger. Tokens and codes are
// never logged.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	logger := slogx.FromContext(ctx)
	for _, e := range events {
		logger.Info("domain event", slog.String("event", e.EventName()))
	}
	return nil
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func observe(e domain.Event, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublishedTotal.WithLabelValues(e.EventName(), result).Inc()
}
