package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratohost/certd/internal/events"
	"github.com/stratohost/certd/internal/repository"
)

// Validator checks that a domain is eligible for issuance.
type Validator interface {
	Validate(ctx context.Context, domain string, isPrimary bool) error
}

// RenewalChecker inspects the deployed certificate for a domain.
type RenewalChecker interface {
	IsRenewalRequired(domain string) (bool, error)
	CertificateExpiry(domain string) (time.Time, error)
}

// CertificateIssuer obtains a certificate from the ACME tool.
type CertificateIssuer interface {
	Issue(ctx context.Context, workDir, domain, contactEmail string) (*IssueResult, error)
}

// ArtifactDeployer moves issued artifacts into serving position.
type ArtifactDeployer interface {
	Deploy(workDir, domain string, issued *IssueResult) error
}

// Notifier handles the failure side effects of a run.
type Notifier interface {
	OnFailure(ctx context.Context, domain string, runErr error, cert *repository.Certificate)
}

// Propagator pushes a persisted certificate reference out to the domain
// records that serve under it.
type Propagator interface {
	Propagate(ctx context.Context, certificateID uuid.UUID, domain string) error
}

// Archiver stores an off-site copy of the deployed artifacts.
type Archiver interface {
	Archive(ctx context.Context, domain string) error
}

// Orchestrator drives one certificate through its full lifecycle: validate,
// decide, issue, deploy, persist, notify, fan out. Issuance failures are
// absorbed into the record; only persistence failures reach the caller.
type Orchestrator struct {
	repo      repository.CertificateRepository
	validator Validator
	renewal   RenewalChecker
	issuer    CertificateIssuer
	deployer  ArtifactDeployer
	notifier  Notifier
	fanout    Propagator
	archive   Archiver
	bus       events.EventBus

	primaryDomain string
	securityEmail string

	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// OrchestratorConfig contains configuration for Orchestrator
type OrchestratorConfig struct {
	Repository repository.CertificateRepository
	Validator  Validator
	Renewal    RenewalChecker
	Issuer     CertificateIssuer
	Deployer   ArtifactDeployer
	Notifier   Notifier
	FanOut     Propagator
	// Archive is optional; when set, deployed artifacts are copied off-site
	// after a successful run.
	Archive Archiver
	// EventBus is optional; lifecycle events are published when set.
	EventBus events.EventBus
	// PrimaryDomain is exempt from the CNAME delegation check
	PrimaryDomain string
	// SecurityEmail is the ACME account contact and alert recipient
	SecurityEmail string
	Logger        *slog.Logger
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		repo:          cfg.Repository,
		validator:     cfg.Validator,
		renewal:       cfg.Renewal,
		issuer:        cfg.Issuer,
		deployer:      cfg.Deployer,
		notifier:      cfg.Notifier,
		fanout:        cfg.FanOut,
		archive:       cfg.Archive,
		bus:           cfg.EventBus,
		primaryDomain: strings.ToLower(cfg.PrimaryDomain),
		securityEmail: cfg.SecurityEmail,
		locks:         newKeyedMutex(),
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Run executes one lifecycle pass for the domain. When force is set, the
// eligibility and freshness checks are skipped and issuance always runs.
//
// A still-fresh certificate returns the current record untouched. Any other
// run failure is recorded on the returned record, not returned as an error:
// the error return carries persistence failures only.
func (o *Orchestrator) Run(ctx context.Context, domain string, force bool) (*repository.Certificate, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))

	unlock := o.locks.Lock(domain)
	defer unlock()

	started := o.now()

	cert, err := o.repo.Load(ctx, domain)
	if err != nil {
		if !errors.Is(err, repository.ErrCertificateNotFound) {
			return nil, fmt.Errorf("failed to load certificate record for %q: %w", domain, err)
		}
		cert = &repository.Certificate{Domain: domain}
	}

	runErr := o.run(ctx, domain, force, cert)
	if errors.Is(runErr, ErrRenewalNotRequired) {
		IssuanceSkippedTotal.Inc()
		o.logger.Info("certificate still fresh, nothing to do", "domain", domain)
		return cert, nil
	}

	if runErr != nil {
		o.notifier.OnFailure(ctx, domain, runErr, cert)
		observeRun(statusFailed, started)
	} else {
		observeRun(statusSuccess, started)
	}

	// The run's outcome must survive caller cancellation: a timeout on the
	// trigger request must not lose a deployed certificate or a recorded
	// failure.
	persistCtx := context.WithoutCancel(ctx)

	saved, err := o.repo.Save(persistCtx, cert)
	if err != nil {
		return nil, fmt.Errorf("failed to persist certificate record for %q: %w", domain, err)
	}

	if err := o.fanout.Propagate(persistCtx, saved.ID, domain); err != nil {
		return nil, fmt.Errorf("failed to propagate certificate reference for %q: %w", domain, err)
	}

	o.publish(saved, runErr)

	if runErr == nil && o.archive != nil {
		go o.archiveAsync(persistCtx, domain)
	}

	return saved, nil
}

// run performs the fallible part of the lifecycle and records success
// bookkeeping on the certificate record.
func (o *Orchestrator) run(ctx context.Context, domain string, force bool, cert *repository.Certificate) error {
	if !force {
		if err := o.validator.Validate(ctx, domain, domain == o.primaryDomain); err != nil {
			return err
		}
		required, err := o.renewal.IsRenewalRequired(domain)
		if err != nil {
			return err
		}
		if !required {
			return ErrRenewalNotRequired
		}
	}

	if o.securityEmail == "" {
		return ErrMissingSecurityEmail
	}

	// Each run gets a fresh working directory under the tool's live root so
	// stale lineage state from earlier attempts cannot leak in.
	workDir := uuid.New().String()

	issued, err := o.issuer.Issue(ctx, workDir, domain, o.securityEmail)
	if err != nil {
		return err
	}

	if err := o.deployer.Deploy(workDir, domain, issued); err != nil {
		return err
	}

	expiry, err := o.renewal.CertificateExpiry(domain)
	if err != nil {
		return err
	}

	now := o.now().UTC()
	cert.Log = issued.CombinedLog()
	cert.Attempts = 0
	cert.IssueDate = &now
	cert.RenewDate = expiry.Add(-RenewalWindow)

	setExpiryGauge(domain, expiry)
	o.logger.Info("certificate deployed",
		"domain", domain,
		"expires", expiry,
		"next_renewal", cert.RenewDate,
	)
	return nil
}

func (o *Orchestrator) publish(cert *repository.Certificate, runErr error) {
	if o.bus == nil {
		return
	}

	event := events.Event{
		ID:            uuid.New().String(),
		Type:          events.EventTypeCertificateIssued,
		Domain:        cert.Domain,
		CertificateID: cert.ID,
		Attempts:      cert.Attempts,
		Timestamp:     o.now().UTC(),
	}
	if runErr != nil {
		event.Type = events.EventTypeCertificateRenewalFailed
		event.Message = runErr.Error()
	}

	if err := o.bus.Publish(event); err != nil {
		o.logger.Warn("failed to publish certificate event",
			"domain", cert.Domain,
			"type", event.Type,
			"error", err,
		)
	}
}

func (o *Orchestrator) archiveAsync(ctx context.Context, domain string) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := o.archive.Archive(ctx, domain); err != nil {
		o.logger.Warn("failed to archive certificate artifacts",
			"domain", domain,
			"error", err,
		)
	}
}
