package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"realtime-chat-service/internal/observability"
)

// Publisher publishes service events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher builds an AMQP publisher, or a noop publisher when AMQP is
// not configured or unreachable so the service keeps running without a broker.
func NewPublisher(amqpURL, exchange string, log *zap.Logger) Publisher {
	if amqpURL == "" {
		log.Info("rabbitmq disabled, using noop publisher", zap.String("reason", "empty amqp url"))
		return noopPublisher{}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn("rabbitmq unreachable, using noop publisher", zap.Error(err))
		return noopPublisher{}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq channel failed, using noop publisher", zap.Error(err))
		_ = conn.Close()
		return noopPublisher{}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		log.Warn("rabbitmq exchange declare failed, using noop publisher", zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{}
	}

	log.Info("rabbitmq connected", zap.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: log}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		p.log.Warn("rabbitmq publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return nil
}

func (noopPublisher) Close() error {
	return nil
}
