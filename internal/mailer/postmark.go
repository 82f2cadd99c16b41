package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// ErrInvalidConfig is returned when the Postmark sender is misconfigured
var ErrInvalidConfig = errors.New("invalid mailer configuration")

// ErrSendFailed is returned when Postmark rejects a message
var ErrSendFailed = errors.New("failed to send email")

// PostmarkSender dispatches messages through Postmark's transactional API
type PostmarkSender struct {
	client      *postmark.Client
	senderEmail string
}

// PostmarkConfig contains configuration for PostmarkSender
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
}

// NewPostmarkSender creates a Postmark-backed dispatcher. Tokens are
// required up front so a misconfigured service fails at startup, not at the
// first alert.
func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: account token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}

	return &PostmarkSender{
		client:      postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		senderEmail: cfg.SenderEmail,
	}, nil
}

// Trigger sends the message through Postmark
func (s *PostmarkSender) Trigger(ctx context.Context, msg Message) error {
	from := s.senderEmail
	if msg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", msg.SenderName, s.senderEmail)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     from,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.Body,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: postmark error %d: %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}

// Ensure PostmarkSender implements Mailer
var _ Mailer = (*PostmarkSender)(nil)
