package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// Custom errors for certificate record operations
var (
	ErrCertificateNotFound = errors.New("certificate record not found")
	ErrVersionConflict     = errors.New("certificate record version conflict")
)

// maxSaveRetries bounds the reread-merge-write loop when concurrent writers
// keep bumping the version token.
const maxSaveRetries = 3

// CertificateRepository defines data access for certificate records.
type CertificateRepository interface {
	// Load returns the record for the domain key, or ErrCertificateNotFound.
	Load(ctx context.Context, domain string) (*Certificate, error)

	// Save re-reads the stored record, field-merges the incoming changes
	// over it (incoming wins), and writes with an optimistic version check.
	// Inserts when no record exists. Returns the persisted record.
	Save(ctx context.Context, cert *Certificate) (*Certificate, error)
}

// PostgresCertificateRepository implements CertificateRepository using PostgreSQL
type PostgresCertificateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCertificateRepository creates a new PostgresCertificateRepository instance
func NewPostgresCertificateRepository(pool *pgxpool.Pool) *PostgresCertificateRepository {
	return &PostgresCertificateRepository{pool: pool}
}

// Load returns the certificate record for a domain (case-insensitive)
func (r *PostgresCertificateRepository) Load(ctx context.Context, domain string) (*Certificate, error) {
	query := `
		SELECT id, domain, log, attempts, renew_date, issue_date, updated_at, version
		FROM certificates
		WHERE LOWER(domain) = LOWER($1)
	`

	cert := &Certificate{}
	err := r.pool.QueryRow(ctx, query, domain).Scan(
		&cert.ID,
		&cert.Domain,
		&cert.Log,
		&cert.Attempts,
		&cert.RenewDate,
		&cert.IssueDate,
		&cert.UpdatedAt,
		&cert.Version,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to load certificate record: %w", err)
	}

	return cert, nil
}

// Save persists the record with merge-before-write semantics. The stored
// snapshot is re-read immediately before writing; the update carries the
// snapshot's version so a concurrent write is detected instead of silently
// lost, and the whole read-merge-write is retried.
func (r *PostgresCertificateRepository) Save(ctx context.Context, cert *Certificate) (*Certificate, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		stored, err := r.Load(ctx, cert.Domain)
		if err != nil {
			if !errors.Is(err, ErrCertificateNotFound) {
				return nil, err
			}
			inserted, err := r.insert(ctx, cert)
			if err != nil {
				// Another writer inserted first; loop and merge over it.
				if isUniqueViolation(err) {
					lastErr = err
					continue
				}
				return nil, err
			}
			return inserted, nil
		}

		merged := mergeCertificate(stored, cert)
		updated, err := r.update(ctx, merged, stored.Version)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to save certificate record for %q after %d attempts: %w",
		cert.Domain, maxSaveRetries, lastErr)
}

// mergeCertificate overlays the incoming record's fields on the stored
// snapshot. Identity and version always come from the store; the lifecycle
// fields the worker owns always come from the incoming record.
func mergeCertificate(stored, incoming *Certificate) *Certificate {
	merged := *stored
	merged.Log = incoming.Log
	merged.Attempts = incoming.Attempts
	merged.RenewDate = incoming.RenewDate
	if incoming.IssueDate != nil {
		merged.IssueDate = incoming.IssueDate
	}
	return &merged
}

func (r *PostgresCertificateRepository) insert(ctx context.Context, cert *Certificate) (*Certificate, error) {
	query := `
		INSERT INTO certificates (id, domain, log, attempts, renew_date, issue_date, updated_at, version)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, 1)
		RETURNING id, domain, log, attempts, renew_date, issue_date, updated_at, version
	`

	id := cert.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()

	saved := &Certificate{}
	err := r.pool.QueryRow(ctx, query,
		id,
		cert.Domain,
		cert.Log,
		cert.Attempts,
		cert.RenewDate,
		cert.IssueDate,
		now,
	).Scan(
		&saved.ID,
		&saved.Domain,
		&saved.Log,
		&saved.Attempts,
		&saved.RenewDate,
		&saved.IssueDate,
		&saved.UpdatedAt,
		&saved.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert certificate record: %w", err)
	}
	return saved, nil
}

func (r *PostgresCertificateRepository) update(ctx context.Context, cert *Certificate, expectedVersion int64) (*Certificate, error) {
	query := `
		UPDATE certificates
		SET log = $1,
		    attempts = $2,
		    renew_date = $3,
		    issue_date = $4,
		    updated_at = $5,
		    version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING id, domain, log, attempts, renew_date, issue_date, updated_at, version
	`

	now := time.Now().UTC()

	saved := &Certificate{}
	err := r.pool.QueryRow(ctx, query,
		cert.Log,
		cert.Attempts,
		cert.RenewDate,
		cert.IssueDate,
		now,
		cert.ID,
		expectedVersion,
	).Scan(
		&saved.ID,
		&saved.Domain,
		&saved.Log,
		&saved.Attempts,
		&saved.RenewDate,
		&saved.IssueDate,
		&saved.UpdatedAt,
		&saved.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to update certificate record: %w", err)
	}
	return saved, nil
}

// isUniqueViolation reports whether err is a unique constraint violation on
// the certificates domain index.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == "idx_certificates_domain"
}

// Ensure PostgresCertificateRepository implements CertificateRepository
var _ CertificateRepository = (*PostgresCertificateRepository)(nil)
