// Package certificate implements the TLS certificate lifecycle: domain
// validation, renewal decisions, issuance via certbot, atomic deployment,
// record persistence, failure notification, and domain fan-out.
package certificate

import "errors"

// Validation errors
var (
	ErrEmptyDomain       = errors.New("domain name is empty")
	ErrUnknownSuffix     = errors.New("domain is not under a known public suffix")
	ErrUnreachableTarget = errors.New("proxy target domain is not a known public domain")
	ErrDNSMismatch       = errors.New("domain CNAME record does not resolve to the proxy target")
)

// Policy signals. ErrRenewalNotRequired is an early-exit signal, not a fault:
// the orchestrator returns cleanly without touching the record.
var ErrRenewalNotRequired = errors.New("certificate renewal not required")

// Configuration errors
var ErrMissingSecurityEmail = errors.New("security contact email is not configured")

// Issuance and decision errors
var (
	ErrUnreadableCertificate = errors.New("deployed certificate could not be parsed")
	ErrIssuanceFailed        = errors.New("certificate issuance failed")
)

// Deployment errors
var (
	ErrDirectoryCreateFailed = errors.New("failed to create certificate storage directory")
	ErrArtifactMoveFailed    = errors.New("failed to move certificate artifact")
	ErrConfigWriteFailed     = errors.New("failed to write proxy config fragment")
)
