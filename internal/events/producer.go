package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is implemented by anything that can put a JSON body on an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// Producer publishes to RabbitMQ topic exchanges over a single channel.
type Producer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewProducer dials the broker with a bounded timeout and opens a channel.
func NewProducer(rawURL string, logger *slog.Logger) (*Producer, error) {
	cleanURL, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{conn: conn, channel: channel, logger: logger}, nil
}

// Publish declares the durable topic exchange and publishes body as JSON. A
// failed publish reopens the channel and retries once.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed; reopening channel", "exchange", exchange, "routing_key", routingKey, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	p.channel = ch
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *Producer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
}

// Close releases the channel and connection.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Fallback drops events with a warning. It is used when no broker is configured
// or the broker is unreachable at startup.
type Fallback struct {
	Logger *slog.Logger
}

// Publish logs the skipped event.
func (f Fallback) Publish(_ context.Context, exchange, routingKey string, _ interface{}) error {
	if f.Logger != nil {
		f.Logger.Debug("publish skipped", "mode", "fallback", "exchange", exchange, "routing_key", routingKey)
	}
	return nil
}

// Close is a no-op.
func (Fallback) Close() {}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
