package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultExchange is the topic exchange domain events are published to.
const DefaultExchange = "carecenter.events"

// AMQPPublisher publishes events as persistent JSON messages on a topic
// exchange. The channel is opened lazily and reopened after it closes.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   zerolog.Logger

	mu sync.RWMutex
	ch *amqp.Channel
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}

	ch, err := p.channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return p, nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	p.mu.RLock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.RUnlock()
		return ch, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p.ch = ch

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err := <-closed; err != nil {
			p.logger.Warn().Err(err).Str("component", "amqp").Msg("publisher channel closed, will reopen on next publish")
		}
	}()
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	done := make(chan error, 1)
	go func() { done <- p.conn.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("close amqp connection: timeout")
	}
}
