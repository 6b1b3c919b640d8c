package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig holds the configuration for RabbitMQ
type RabbitMQConfig struct {
	AMQPURL       string
	PrefetchCount int
}

// ExchangeConfig defines exchange configuration
type ExchangeConfig struct {
	Name       string
	Type       string // "topic", "direct", "fanout", "headers"
	Durable    bool
	AutoDelete bool
}

// QueueConfig defines queue configuration
type QueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// RabbitMQ wraps the AMQP connection and provides high-level operations
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  RabbitMQConfig
	closed  bool
}

// NewRabbitMQ creates a new RabbitMQ client with configuration
func NewRabbitMQ(config RabbitMQConfig) (*RabbitMQ, error) {
	rmq := &RabbitMQ{config: config}
	if err := rmq.connect(); err != nil {
		return nil, err
	}
	return rmq, nil
}

// connect establishes connection to RabbitMQ
func (r *RabbitMQ) connect() error {
	conn, err := amqp.DialConfig(r.config.AMQPURL, amqp.Config{
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	prefetch := r.config.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	r.conn = conn
	r.channel = ch
	r.closed = false

	return nil
}

// DeclareExchange declares an exchange
func (r *RabbitMQ) DeclareExchange(config ExchangeConfig) error {
	return r.channel.ExchangeDeclare(
		config.Name,
		config.Type,
		config.Durable,
		config.AutoDelete,
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareQueue declares a queue
func (r *RabbitMQ) DeclareQueue(config QueueConfig) (amqp.Queue, error) {
	return r.channel.QueueDeclare(
		config.Name,
		config.Durable,
		config.AutoDelete,
		config.Exclusive,
		false, // no-wait
		nil,
	)
}

// BindQueue binds a queue to an exchange
func (r *RabbitMQ) BindQueue(queueName, routingKey, exchangeName string) error {
	return r.channel.QueueBind(queueName, routingKey, exchangeName, false, nil)
}

// Consume registers a consumer on a queue and returns the delivery channel
func (r *RabbitMQ) Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error) {
	if r.closed {
		return nil, fmt.Errorf("connection is closed")
	}
	return r.channel.Consume(
		queueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// CancelConsumer cancels a consumer by tag
func (r *RabbitMQ) CancelConsumer(consumerTag string) error {
	if r.channel == nil {
		return nil
	}
	return r.channel.Cancel(consumerTag, false)
}

// DeleteQueue deletes a queue
func (r *RabbitMQ) DeleteQueue(queueName string) error {
	if r.channel == nil {
		return nil
	}
	_, err := r.channel.QueueDelete(queueName, false, false, false)
	return err
}

// PublishJSON publishes a persistent JSON message
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchange, routingKey string, body []byte) error {
	if r.closed {
		return fmt.Errorf("connection is closed")
	}
	return r.channel.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// IsConnected checks if the connection is alive
func (r *RabbitMQ) IsConnected() bool {
	return !r.closed && r.conn != nil && !r.conn.IsClosed()
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	r.closed = true

	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
