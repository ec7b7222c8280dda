package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// KindOTP carries a one-time code confirming a pending transfer.
	KindOTP = "otp"
	// KindTransferSettled tells a sender their transfer completed.
	KindTransferSettled = "transfer_settled"
)

// Exchange is the topic exchange queued notifications are published to.
const Exchange = "notifications"

// ErrUndeliverable is returned when a message has no destination.
var ErrUndeliverable = errors.New("notification has no destination")

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. It stands in for e-mail
// delivery in development.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if message.Destination == "" {
		return ErrUndeliverable
	}
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "subject", message.Subject, "body", message.Body)
	return nil
}

// Publisher is the slice of a message broker producer QueueNotifier needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// QueueNotifier hands messages to a broker so a mailer service can deliver them.
type QueueNotifier struct {
	publisher Publisher
}

// NewQueueNotifier wraps a broker publisher.
func NewQueueNotifier(publisher Publisher) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

// Send publishes the message under "notification.<kind>".
func (n *QueueNotifier) Send(ctx context.Context, message Message) error {
	if message.Destination == "" {
		return ErrUndeliverable
	}
	return n.publisher.Publish(ctx, Exchange, "notification."+message.Kind, message)
}
