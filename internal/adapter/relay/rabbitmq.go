package relay

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitChannel is an alternate transport backed by a RabbitMQ fanout
// exchange per event pairing. Every connected device gets its own exclusive
// queue bound to the exchange, so frames fan out to all devices including
// the sender; consumers filter on the envelope's device id.
type RabbitChannel struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	log      *zap.Logger
}

func NewRabbitChannel(url, channel, deviceID string, log *zap.Logger) (*RabbitChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	exchange := "caterpos.sync." + channel
	if err := ch.ExchangeDeclare(exchange, "fanout", false, true, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &RabbitChannel{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    q.Name,
		log:      log,
	}, nil
}

func (c *RabbitChannel) Publish(msg []byte) error {
	if c.conn.IsClosed() {
		return ErrNotConnected
	}
	return c.ch.Publish(c.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        msg,
	})
}

func (c *RabbitChannel) Subscribe(handler func(msg []byte) error) error {
	deliveries, err := c.ch.Consume(c.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queue, err)
	}

	go func() {
		for d := range deliveries {
			if err := handler(d.Body); err != nil {
				c.log.Warn("Sync message handler failed", zap.Error(err))
			}
		}
	}()
	return nil
}

func (c *RabbitChannel) Connected() bool {
	return !c.conn.IsClosed()
}

func (c *RabbitChannel) Close() error {
	c.ch.Close()
	return c.conn.Close()
}
