// Package mailer defines the outbound mail boundary and its dispatchers.
// Delivery is fire-and-forget from the caller's perspective: Trigger
// enqueues, delivery guarantees belong to the dispatcher.
package mailer

import (
	"context"
	"log/slog"
)

// Message is a rendered notification ready for dispatch
type Message struct {
	To         string
	Subject    string
	Body       string
	SenderName string
}

// Mailer dispatches rendered messages
type Mailer interface {
	Trigger(ctx context.Context, msg Message) error
}

// DevSender logs messages instead of delivering them. Used in development
// and as the fallback when no dispatcher is configured.
type DevSender struct {
	logger *slog.Logger
}

// NewDevSender creates a new DevSender instance
func NewDevSender(logger *slog.Logger) *DevSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &DevSender{logger: logger}
}

// Trigger logs the message and returns nil
func (s *DevSender) Trigger(ctx context.Context, msg Message) error {
	s.logger.Info("mail dispatched (dev sender)",
		"to", msg.To,
		"subject", msg.Subject,
		"sender_name", msg.SenderName,
	)
	return nil
}

// Ensure DevSender implements Mailer
var _ Mailer = (*DevSender)(nil)
