package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueName derives a tenant's callback queue name. The broker gateway and the
// job submission client must compute identical names from the same prefix, so
// the formula lives in exactly one place.
func QueueName(prefix, tenantID string) string {
	return fmt.Sprintf("%s.%s.queue", prefix, tenantID)
}

// Config holds RabbitMQ connection and topology configuration
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	VHost         string
	ExchangeName  string
	QueuePrefix   string
	RetryAttempts int
	RetryInterval time.Duration
	Heartbeat     time.Duration
}

// channel is the subset of *amqp.Channel the client uses. Narrowed so the
// per-tenant topology can be exercised in tests without a live broker.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// DeliveryHandler processes one broker delivery. Implementations own
// acknowledgement; the client never acks on their behalf.
type DeliveryHandler func(ctx context.Context, delivery amqp.Delivery)

// Client represents a RabbitMQ client owning one connection, one channel and
// the per-tenant queue bindings on a shared topic exchange.
type Client struct {
	config     *Config
	logger     *slog.Logger
	conn       *amqp.Connection
	channel    channel
	instanceID string

	mu        sync.Mutex
	bound     map[string]struct{}
	consuming map[string]struct{}
}

// NewClient connects to RabbitMQ and declares the topic exchange. A broker
// that stays unreachable through all retry attempts is a startup failure the
// caller is expected to treat as fatal.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:     config,
		logger:     logger,
		instanceID: fmt.Sprintf("relay-%s", uuid.NewString()[:8]),
		bound:      make(map[string]struct{}),
		consuming:  make(map[string]struct{}),
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

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	ch, err := c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}
	c.channel = ch

	// One durable topic exchange shared by all tenant queues.
	if err := c.channel.ExchangeDeclare(
		c.config.ExchangeName, // name
		"topic",               // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue_prefix", c.config.QueuePrefix),
		slog.String("instance_id", c.instanceID),
	)

	return nil
}

// TenantQueueName returns the queue name the client declares for a tenant.
func (c *Client) TenantQueueName(tenantID string) string {
	return QueueName(c.config.QueuePrefix, tenantID)
}

// EnsureTenantQueue declares a durable queue for the tenant and binds it to
// the topic exchange with a routing key equal to the queue name. Idempotent:
// an already-bound tenant is a no-op, checked against the tracked bound set
// rather than re-queried from the broker.
func (c *Client) EnsureTenantQueue(tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.bound[tenantID]; ok {
		return nil
	}

	queueName := c.TenantQueueName(tenantID)

	_, err := c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := c.channel.QueueBind(
		queueName,             // queue name
		queueName,             // routing key
		c.config.ExchangeName, // exchange
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}

	c.bound[tenantID] = struct{}{}

	c.logger.Info("Tenant queue bound",
		slog.String("tenant_id", tenantID),
		slog.String("queue", queueName),
	)

	return nil
}

// StartConsuming registers the per-tenant consumer with manual
// acknowledgement and dispatches each delivery on its own goroutine. Must be
// called after EnsureTenantQueue.
func (c *Client) StartConsuming(ctx context.Context, tenantID string, handler DeliveryHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.bound[tenantID]; !ok {
		return fmt.Errorf("tenant %s queue not bound", tenantID)
	}
	if _, ok := c.consuming[tenantID]; ok {
		return nil
	}

	queueName := c.TenantQueueName(tenantID)
	consumerTag := fmt.Sprintf("%s-%s", c.instanceID, tenantID)

	deliveries, err := c.channel.Consume(
		queueName,   // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume from queue %s: %w", queueName, err)
	}

	c.consuming[tenantID] = struct{}{}

	go c.dispatch(ctx, tenantID, deliveries, handler)

	c.logger.Info("Started consuming tenant queue",
		slog.String("tenant_id", tenantID),
		slog.String("queue", queueName),
		slog.String("consumer_tag", consumerTag),
	)

	return nil
}

// dispatch fans deliveries out to the handler, one goroutine per message.
func (c *Client) dispatch(ctx context.Context, tenantID string, deliveries <-chan amqp.Delivery, handler DeliveryHandler) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Delivery dispatcher stopped - context canceled",
				slog.String("tenant_id", tenantID),
			)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed",
					slog.String("tenant_id", tenantID),
				)
				return
			}

			go handler(ctx, delivery)
		}
	}
}

// AddTenant provisions and starts consuming a tenant queue in one call. Used
// when a tenant is set up while the gateway is already running; the startup
// bootstrap instead binds all known tenants before any consuming begins.
func (c *Client) AddTenant(ctx context.Context, tenantID string, handler DeliveryHandler) error {
	if err := c.EnsureTenantQueue(tenantID); err != nil {
		return err
	}
	return c.StartConsuming(ctx, tenantID, handler)
}

// BoundTenants returns the tenants with a declared and bound queue.
func (c *Client) BoundTenants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tenants := make([]string, 0, len(c.bound))
	for tenantID := range c.bound {
		tenants = append(tenants, tenantID)
	}
	return tenants
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close closes the channel then the connection, best-effort. Failures are
// logged, never returned as fatal to shutdown paths.
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

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

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}
