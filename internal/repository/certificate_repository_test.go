package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMergeCertificateIncomingLifecycleFieldsWin(t *testing.T) {
	issue := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	stored := &Certificate{
		ID:        uuid.New(),
		Domain:    "app.customer.com",
		Log:       "older log",
		Attempts:  3,
		RenewDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:   4,
	}
	incoming := &Certificate{
		Domain:    "app.customer.com",
		Log:       "fresh issuance output",
		Attempts:  0,
		RenewDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		IssueDate: &issue,
	}

	merged := mergeCertificate(stored, incoming)

	// Identity and version come from the store.
	if merged.ID != stored.ID {
		t.Errorf("id = %v, want %v", merged.ID, stored.ID)
	}
	if merged.Version != 4 {
		t.Errorf("version = %d, want 4", merged.Version)
	}

	// Lifecycle fields come from the incoming record.
	if merged.Log != "fresh issuance output" {
		t.Errorf("log = %q", merged.Log)
	}
	if merged.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", merged.Attempts)
	}
	if !merged.RenewDate.Equal(incoming.RenewDate) {
		t.Errorf("renew date = %v", merged.RenewDate)
	}
	if merged.IssueDate == nil || !merged.IssueDate.Equal(issue) {
		t.Errorf("issue date = %v", merged.IssueDate)
	}
}

func TestMergeCertificateKeepsStoredIssueDateWhenIncomingHasNone(t *testing.T) {
	issue := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	stored := &Certificate{
		ID:        uuid.New(),
		Domain:    "app.customer.com",
		IssueDate: &issue,
	}
	// A failed attempt carries no issue date; the last successful one
	// must survive the merge.
	incoming := &Certificate{
		Domain:    "app.customer.com",
		Log:       "challenge failed",
		Attempts:  1,
		RenewDate: time.Now().UTC(),
	}

	merged := mergeCertificate(stored, incoming)
	if merged.IssueDate == nil || !merged.IssueDate.Equal(issue) {
		t.Errorf("issue date = %v, want stored %v", merged.IssueDate, issue)
	}
	if merged.Log != "challenge failed" {
		t.Errorf("log = %q", merged.Log)
	}
}

func TestMergeCertificateDoesNotMutateInputs(t *testing.T) {
	stored := &Certificate{ID: uuid.New(), Domain: "app.customer.com", Attempts: 2}
	incoming := &Certificate{Domain: "app.customer.com", Attempts: 3}

	_ = mergeCertificate(stored, incoming)

	if stored.Attempts != 2 || incoming.Attempts != 3 {
		t.Error("merge mutated its inputs")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	domainViolation := &pgconn.PgError{Code: "23505", ConstraintName: "idx_certificates_domain"}
	if !isUniqueViolation(domainViolation) {
		t.Error("domain index violation not detected")
	}
	if !isUniqueViolation(fmt.Errorf("failed to insert: %w", domainViolation)) {
		t.Error("wrapped domain index violation not detected")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "idx_domains_domain"}) {
		t.Error("violation on another index flagged")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503", ConstraintName: "idx_certificates_domain"}) {
		t.Error("non-unique-violation code flagged")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("unrelated error flagged as unique violation")
	}
	if isUniqueViolation(nil) {
		t.Error("nil error flagged as unique violation")
	}
}
