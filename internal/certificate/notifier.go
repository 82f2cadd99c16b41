package certificate

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/stratohost/certd/internal/i18n"
	"github.com/stratohost/certd/internal/mailer"
	"github.com/stratohost/certd/internal/repository"
)

// FailureNotifier converts a failed issuance run into recorded state plus an
// operator alert. It never fails the outer operation: a broken mail
// dispatcher must not prevent the record from being persisted.
type FailureNotifier struct {
	mail          mailer.Mailer
	catalog       *i18n.Catalog
	securityEmail string
	locale        string
	senderName    string
	logger        *slog.Logger
	now           func() time.Time
}

// FailureNotifierConfig contains configuration for FailureNotifier
type FailureNotifierConfig struct {
	Mailer mailer.Mailer
	// Catalog renders the alert email; missing templates fall back to the
	// catalog's default locale.
	Catalog *i18n.Catalog
	// SecurityEmail receives the operator alert
	SecurityEmail string
	// Locale selects the alert language
	Locale     string
	SenderName string
	Logger     *slog.Logger
}

// NewFailureNotifier creates a new FailureNotifier instance
func NewFailureNotifier(cfg FailureNotifierConfig) *FailureNotifier {
	if cfg.Catalog == nil {
		cfg.Catalog = i18n.NewCatalog("en")
	}
	if cfg.Locale == "" {
		cfg.Locale = cfg.Catalog.DefaultLocale()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FailureNotifier{
		mail:          cfg.Mailer,
		catalog:       cfg.Catalog,
		securityEmail: cfg.SecurityEmail,
		locale:        cfg.Locale,
		senderName:    cfg.SenderName,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// OnFailure records the failure into the certificate record and alerts the
// operator. The record's renew date is reset to now so the next maintenance
// pass retries regardless of any earlier expiry-based date.
func (n *FailureNotifier) OnFailure(ctx context.Context, domain string, runErr error, cert *repository.Certificate) {
	now := n.now().UTC()

	cert.Log = runErr.Error()
	cert.Attempts++
	cert.RenewDate = now

	n.logger.Warn("certificate issuance failed",
		"domain", domain,
		"attempts", cert.Attempts,
		"reason", runErr.Error(),
	)

	if n.mail == nil || n.securityEmail == "" {
		return
	}

	params := map[string]string{
		"domain":  domain,
		"error":   runErr.Error(),
		"attempt": strconv.Itoa(cert.Attempts),
	}
	msg := mailer.Message{
		To:         n.securityEmail,
		Subject:    n.catalog.Render(n.locale, i18n.KeyCertFailedSubject, params),
		Body:       n.catalog.Render(n.locale, i18n.KeyCertFailedBody, params),
		SenderName: n.senderName,
	}

	if err := n.mail.Trigger(ctx, msg); err != nil {
		n.logger.Error("failed to enqueue certificate alert email",
			"domain", domain,
			"to", n.securityEmail,
			"error", err,
		)
	}
}
