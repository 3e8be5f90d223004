// Package events carries domain events from the services to their
// subscribers: the AMQP exchange, the live board hub and in-process
// listeners.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAttendanceScheduled      = "attendance.scheduled"
	TypeAttendanceStatusChanged  = "attendance.status_changed"
	TypeAttendanceCancelled      = "attendance.cancelled"
	TypeAttendanceAbsencesMarked = "attendance.absences_confirmed"
	TypeDayClosed                = "day.closed"
)

// Event is a domain event. Topic scopes delivery to websocket subscribers,
// Type doubles as the AMQP routing key.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh id and data marshalled to JSON.
func New(eventType, topic string, data interface{}) (Event, error) {
	ev := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// DayTopic is the topic every change of one clinic day is published on.
func DayTopic(date time.Time) string {
	return "day:" + date.Format("2006-01-02")
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Fanout publishes to every publisher and joins their errors. One failing
// destination does not stop delivery to the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
