package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDomainNotFound is returned when a domain record does not exist
var ErrDomainNotFound = errors.New("domain record not found")

// DefaultFanOutLimit bounds a single fan-out batch over domain records
// sharing one domain string.
const DefaultFanOutLimit = 1000

// DomainRepository defines read/update access to domain records. The records
// are owned by the platform; this service only maintains the certificate
// back-reference and the updated timestamp.
type DomainRepository interface {
	// ListByDomain returns up to limit records matching the domain string.
	ListByDomain(ctx context.Context, domain string, limit int) ([]*DomainRecord, error)

	// SetCertificateRef sets the record's certificate back-reference and
	// refreshes its updated timestamp.
	SetCertificateRef(ctx context.Context, id uuid.UUID, certificateID uuid.UUID) error
}

// PostgresDomainRepository implements DomainRepository using PostgreSQL
type PostgresDomainRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDomainRepository creates a new PostgresDomainRepository instance
func NewPostgresDomainRepository(pool *pgxpool.Pool) *PostgresDomainRepository {
	return &PostgresDomainRepository{pool: pool}
}

// ListByDomain returns up to limit domain records matching the domain string
// (case-insensitive)
func (r *PostgresDomainRepository) ListByDomain(ctx context.Context, domain string, limit int) ([]*DomainRecord, error) {
	if limit <= 0 {
		limit = DefaultFanOutLimit
	}

	query := `
		SELECT id, domain, project_id, certificate_id, updated_at
		FROM domains
		WHERE LOWER(domain) = LOWER($1)
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list domain records: %w", err)
	}
	defer rows.Close()

	var records []*DomainRecord
	for rows.Next() {
		record := &DomainRecord{}
		err := rows.Scan(
			&record.ID,
			&record.Domain,
			&record.ProjectID,
			&record.CertificateID,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domain records: %w", err)
	}

	return records, nil
}

// SetCertificateRef points the domain record at the given certificate
func (r *PostgresDomainRepository) SetCertificateRef(ctx context.Context, id uuid.UUID, certificateID uuid.UUID) error {
	query := `
		UPDATE domains
		SET certificate_id = $1, updated_at = $2
		WHERE id = $3
	`

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, query, certificateID, now, id)
	if err != nil {
		return fmt.Errorf("failed to update domain record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrDomainNotFound
	}

	return nil
}

// Ensure PostgresDomainRepository implements DomainRepository
var _ DomainRepository = (*PostgresDomainRepository)(nil)
