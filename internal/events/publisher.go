// Package events publishes sitebook events to a RabbitMQ exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
)

const publishTimeout = 5 * time.Second

// Publisher sends JSON messages to a durable topic exchange.
type Publisher struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	routingKey string
	log        *zap.Logger
}

// NewPublisher dials url and declares the exchange.
func NewPublisher(url, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &Publisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		log:        logging.OrNop(logger).Named(logging.ComponentEvents),
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return p, nil
}

// RecordMutation publishes the outcome under "<routing key>.<outcome>".
func (p *Publisher) RecordMutation(ctx context.Context, ev model.MutationEvent) error {
	body, err := NewMutationMessage(ev).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.publish(ctx, p.routingKey+"."+ev.Outcome, ev.ID, body)
}

// PublishDashboard publishes a dashboard summary under "dashboard.updated".
func (p *Publisher) PublishDashboard(ctx context.Context, summary any) error {
	body, err := json.Marshal(DashboardMessage{Type: TypeDashboard, At: time.Now().UTC(), Payload: summary})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.publish(ctx, "dashboard.updated", "", body)
}

func (p *Publisher) publish(ctx context.Context, key, msgID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.log.Debug("published",
		zap.String(logging.FieldOperation, logging.OpPublish),
		zap.String("exchange", p.exchange),
		zap.String("routing_key", key),
	)
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
