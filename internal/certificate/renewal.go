package certificate

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RenewalWindow is how long before expiry a certificate becomes due for
// renewal. Fixed policy value.
const RenewalWindow = 30 * 24 * time.Hour

// leafCertFile is the deployed leaf certificate checked for expiry
const leafCertFile = "cert.pem"

// RenewalEngine decides whether an existing deployed certificate needs
// renewal based on its expiry date.
type RenewalEngine struct {
	storageRoot string
	now         func() time.Time
}

// NewRenewalEngine creates a new RenewalEngine reading deployed certificates
// under storageRoot.
func NewRenewalEngine(storageRoot string) *RenewalEngine {
	return &RenewalEngine{
		storageRoot: storageRoot,
		now:         time.Now,
	}
}

// IsRenewalRequired reports whether the domain needs a new certificate.
// A missing certificate file means first issuance, which is always required.
func (e *RenewalEngine) IsRenewalRequired(domain string) (bool, error) {
	expiry, err := e.CertificateExpiry(domain)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return renewalRequired(expiry, e.now()), nil
}

// CertificateExpiry parses the deployed leaf certificate and returns its
// NotAfter date. Returns an os.IsNotExist error when no certificate has been
// deployed yet.
func (e *RenewalEngine) CertificateExpiry(domain string) (time.Time, error) {
	path := filepath.Join(e.storageRoot, domain, leafCertFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnreadableCertificate, err)
	}

	expiry, err := parseExpiry(data)
	if err != nil {
		return time.Time{}, err
	}
	return expiry, nil
}

// renewalRequired is the window rule: renewal is not required only while
// expiry minus the window is still in the future.
func renewalRequired(expiry, now time.Time) bool {
	return !expiry.Add(-RenewalWindow).After(now)
}

// parseExpiry extracts NotAfter from PEM-encoded certificate data
func parseExpiry(data []byte) (time.Time, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return time.Time{}, fmt.Errorf("%w: no PEM block found", ErrUnreadableCertificate)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnreadableCertificate, err)
	}

	return cert.NotAfter, nil
}
