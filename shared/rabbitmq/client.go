package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	QueueName          string
	QueueDurable       bool
	RetryQueueName     string
	RoutingKey         string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Client represents a RabbitMQ client. The work queue carries job references;
// the retry queue holds delayed redeliveries and dead-letters expired messages
// back into the work queue.
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected bool
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	maxAttempts := c.config.RetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < maxAttempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxAttempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queues: %w", err)
	}

	c.closeChan = make(chan *amqp.Error)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.String("retry_queue", c.config.RetryQueueName),
	)

	return nil
}

// setup declares the exchange, the work queue, and the retry queue. Messages
// published to the retry queue with a per-message TTL dead-letter back into
// the work queue once the TTL elapses.
func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.config.ExchangeName,
		c.config.ExchangeType,
		c.config.ExchangeDurable,
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.config.QueueName,
		c.config.QueueDurable,
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare work queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.QueueName,
		c.config.RoutingKey,
		c.config.ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind work queue: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.config.RetryQueueName,
		c.config.QueueDurable,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    c.config.ExchangeName,
			"x-dead-letter-routing-key": c.config.RoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}

	return nil
}

// Publish publishes a message to the work queue through the exchange
func (c *Client) Publish(ctx context.Context, body []byte, contentType string) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName,
		c.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.Int("body_size", len(body)),
	)

	return nil
}

// PublishWithRetry publishes with retry logic and exponential backoff
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	mult := c.config.PublishBackoffMult
	if mult < 1 {
		mult = 2
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.Publish(ctx, body, contentType); err == nil {
			if attempt > 0 {
				c.logger.Info("Published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
				)
			}
			return nil
		} else {
			lastErr = err
		}

		if attempt < maxRetries {
			backoffDelay := publishBackoff(baseDelay, mult, attempt)
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", lastErr),
			)
			time.Sleep(backoffDelay)
		}
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// publishBackoff computes the delay before the retry following 0-based
// publish attempt n: base * mult^n.
func publishBackoff(base time.Duration, mult float64, attempt int) time.Duration {
	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= mult
	}
	return time.Duration(delay)
}

// PublishDelayed publishes directly to the retry queue with a per-message TTL
// so the message re-enters the work queue after the given delay.
func (c *Client) PublishDelayed(ctx context.Context, body []byte, contentType string, delay time.Duration) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		"", // default exchange routes by queue name
		c.config.RetryQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish delayed message: %w", err)
	}

	c.logger.Debug("Delayed message published to retry queue",
		slog.Duration("delay", delay),
		slog.Int("body_size", len(body)),
	)

	return nil
}

// Consume starts consuming messages from the work queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	messages, err := c.channel.Consume(
		c.config.QueueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

// RoundTrip performs a bounded write+read+delete against a throwaway probe
// queue, verifying the broker can accept and deliver messages end to end.
func (c *Client) RoundTrip(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	probeName := c.config.QueueName + ".probe." + uuid.New().String()[:8]

	q, err := c.channel.QueueDeclare(probeName, false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("probe queue declare failed: %w", err)
	}
	defer c.channel.QueueDelete(q.Name, false, false, true)

	err = c.channel.PublishWithContext(ctx, "", q.Name, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte("ping"),
	})
	if err != nil {
		return fmt.Errorf("probe publish failed: %w", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		msg, ok, err := c.channel.Get(q.Name, true)
		if err != nil {
			return fmt.Errorf("probe get failed: %w", err)
		}
		if ok {
			if string(msg.Body) != "ping" {
				return fmt.Errorf("probe message corrupted")
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("probe message not delivered in time")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// GetChannel returns the channel for ack/nack operations
func (c *Client) GetChannel() *amqp.Channel {
	return c.channel
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// Reconnect tears down the current connection and dials again. Used by the
// auto-recovery layer to force-reset a wedged broker client.
func (c *Client) Reconnect() error {
	c.logger.Info("Reconnecting to RabbitMQ")

	c.isConnected = false
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	return c.connect()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
