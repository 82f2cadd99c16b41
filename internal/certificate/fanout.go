package certificate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stratohost/certd/internal/repository"
)

// FanOutUpdater propagates a certificate's identity to every domain record
// sharing its domain string and invalidates dependent project caches. It
// runs only after the certificate record has been durably saved.
type FanOutUpdater struct {
	domains  repository.DomainRepository
	projects repository.ProjectCache
	limit    int
	logger   *slog.Logger
}

// FanOutUpdaterConfig contains configuration for FanOutUpdater
type FanOutUpdaterConfig struct {
	Domains  repository.DomainRepository
	Projects repository.ProjectCache
	// Limit bounds one fan-out batch (default 1000)
	Limit  int
	Logger *slog.Logger
}

// NewFanOutUpdater creates a new FanOutUpdater instance
func NewFanOutUpdater(cfg FanOutUpdaterConfig) *FanOutUpdater {
	if cfg.Limit <= 0 {
		cfg.Limit = repository.DefaultFanOutLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FanOutUpdater{
		domains:  cfg.Domains,
		projects: cfg.Projects,
		limit:    cfg.Limit,
		logger:   cfg.Logger,
	}
}

// Propagate sets the certificate back-reference on all matching domain
// records and invalidates cached project documents that embed them.
func (f *FanOutUpdater) Propagate(ctx context.Context, certificateID uuid.UUID, domain string) error {
	records, err := f.domains.ListByDomain(ctx, domain, f.limit)
	if err != nil {
		return fmt.Errorf("fan-out query failed for %q: %w", domain, err)
	}

	for _, record := range records {
		if err := f.domains.SetCertificateRef(ctx, record.ID, certificateID); err != nil {
			return fmt.Errorf("fan-out update failed for domain record %s: %w", record.ID, err)
		}

		if record.ProjectID == nil || f.projects == nil {
			continue
		}
		// Cache invalidation is best-effort: a stale cached project is
		// read-repairable, a failed domain update is not.
		if err := f.projects.Invalidate(ctx, *record.ProjectID); err != nil {
			f.logger.Warn("project cache invalidation failed",
				"project_id", record.ProjectID.String(),
				"domain", domain,
				"error", err,
			)
		}
	}

	f.logger.Info("certificate propagated to domain records",
		"domain", domain,
		"certificate_id", certificateID.String(),
		"records", len(records),
	)
	return nil
}
