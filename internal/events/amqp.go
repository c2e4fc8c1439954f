package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// AMQPClient publishes and consumes proposal events over RabbitMQ using a
// durable direct exchange bound to one durable queue.
type AMQPClient struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	log          zerolog.Logger
}

// NewAMQPClient dials the broker and declares the exchange, queue and binding.
func NewAMQPClient(url, exchangeName, queueName string, log zerolog.Logger) (*AMQPClient, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPClient: dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQPClient: open channel: %w", err)
	}

	c := &AMQPClient{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		log:          log,
	}
	if err := c.setup(); err != nil {
		c.Close()
		return nil, fmt.Errorf("NewAMQPClient: setup exchange and queue: %w", err)
	}
	return c, nil
}

func (c *AMQPClient) setup() error {
	if err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// The routing key is the queue name.
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish implements the Publisher interface.
func (c *AMQPClient) Publish(ctx context.Context, e *Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("Publish: marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    e.Timestamp,
			Type:         string(e.Event),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}

	c.log.Debug().
		Str("event", string(e.Event)).
		Str("proposal_id", e.ProposalID).
		Str("exchange", c.exchangeName).
		Msg("Published proposal event")
	return nil
}

// Consume delivers events to handler until ctx is cancelled. Malformed
// messages are dropped; handler failures are requeued.
func (c *AMQPClient) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("Consume: start consuming: %w", err)
	}

	c.log.Info().Str("queue", c.queueName).Msg("Started consuming proposal events")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Err(ctx.Err()).Msg("Stopping event consumption")
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("Consume: delivery channel closed")
			}

			e, err := FromJSON(delivery.Body)
			if err != nil {
				c.log.Error().Err(err).Msg("Failed to unmarshal event")
				_ = delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, e); err != nil {
				c.log.Error().Err(err).Str("proposal_id", e.ProposalID).Msg("Failed to handle event")
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close implements the Publisher interface.
func (c *AMQPClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ Publisher = (*AMQPClient)(nil)
