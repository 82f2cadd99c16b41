package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultDNSTimeout is the default timeout for DNS lookups
const DefaultDNSTimeout = 5 * time.Second

// CNAMEResolver looks up the canonical name for a host. *net.Resolver
// satisfies it; tests inject a fake.
type CNAMEResolver interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// DomainValidator confirms a domain is eligible for issuance. The check is
// pure: no state is touched, only DNS is consulted.
type DomainValidator struct {
	resolver CNAMEResolver
	target   string
	timeout  time.Duration
	logger   *slog.Logger
}

// DomainValidatorConfig contains configuration for DomainValidator
type DomainValidatorConfig struct {
	// ProxyTargetDomain is the CNAME target custom domains must point at
	ProxyTargetDomain string
	Resolver          CNAMEResolver
	Timeout           time.Duration
	Logger            *slog.Logger
}

// NewDomainValidator creates a new DomainValidator instance
func NewDomainValidator(cfg DomainValidatorConfig) *DomainValidator {
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultDNSTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &DomainValidator{
		resolver: cfg.Resolver,
		target:   strings.ToLower(cfg.ProxyTargetDomain),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Validate checks that the domain is publicly issuable. Non-primary domains
// must additionally prove ownership by a CNAME pointing at the proxy target;
// the primary domain is assumed to reach the service by other means.
func (v *DomainValidator) Validate(ctx context.Context, domain string, isPrimary bool) error {
	if domain == "" {
		return ErrEmptyDomain
	}

	if !isKnownPublicDomain(domain) {
		return fmt.Errorf("%w: %q", ErrUnknownSuffix, domain)
	}

	if isPrimary {
		return nil
	}

	if !isKnownPublicDomain(v.target) {
		return fmt.Errorf("%w: %q", ErrUnreachableTarget, v.target)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cname, err := v.resolver.LookupCNAME(ctx, domain)
	if err != nil {
		v.logger.Debug("CNAME lookup failed", "domain", domain, "error", err)
		return fmt.Errorf("%w: lookup failed for %q: %v", ErrDNSMismatch, domain, err)
	}

	cname = strings.ToLower(strings.TrimSuffix(cname, "."))
	if cname != v.target {
		return fmt.Errorf("%w: %q resolves to %q, expected %q", ErrDNSMismatch, domain, cname, v.target)
	}

	return nil
}

// isKnownPublicDomain reports whether name sits under an ICANN-managed
// public suffix with at least one label of its own. Test and internal TLDs
// (.test, .local, .internal) fail the ICANN check.
func isKnownPublicDomain(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if name == "" {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(name)
	if !icann {
		return false
	}
	return len(name) > len(suffix)
}
