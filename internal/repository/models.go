// Package repository provides PostgreSQL data access for certificate and
// domain records, plus the Redis-backed project cache invalidator.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is the per-domain certificate record owned by the lifecycle
// manager. One record exists per domain name; it is mutated in place by
// every issuance attempt and never deleted here.
type Certificate struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Domain   string    `db:"domain" json:"domain"`
	// Log holds the issuance tool output on success or the failure message
	// on error. Last write wins.
	Log      string `db:"log" json:"log"`
	Attempts int    `db:"attempts" json:"attempts"`
	// RenewDate is when the record becomes due again: expiry minus the
	// renewal window on success, the failure time on error.
	RenewDate time.Time  `db:"renew_date" json:"renew_date"`
	IssueDate *time.Time `db:"issue_date" json:"issue_date,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	// Version is the optimistic concurrency token; bumped on every update.
	Version int64 `db:"version" json:"version"`
}

// DomainRecord references an externally owned domain document. Only the
// certificate back-reference and the updated timestamp are written here.
type DomainRecord struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Domain        string     `db:"domain" json:"domain"`
	ProjectID     *uuid.UUID `db:"project_id" json:"project_id,omitempty"`
	CertificateID *uuid.UUID `db:"certificate_id" json:"certificate_id,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
