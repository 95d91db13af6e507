package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"interview-room/config"
)

// Publish sends message as JSON to the configured exchange. The exchange is
// declared the same way the consumer declares it.
func Publish(ctx context.Context, conn *amqp.Connection, cfg *config.RabbitMQ, routingKey string, message any) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(cfg.ExchangeName, cfg.Kind, true, false, false, false, nil)
	if err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, cfg.ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("exchange", cfg.ExchangeName).Str("routing_key", routingKey).Msg("message published")
	return nil
}
