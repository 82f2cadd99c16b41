package certificate

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// selfSignedPEM builds a throwaway certificate expiring at notAfter.
func selfSignedPEM(t *testing.T, domain string, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func writeDeployedCert(t *testing.T, root, domain string, notAfter time.Time) {
	t.Helper()
	dir := filepath.Join(root, domain)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, leafCertFile), selfSignedPEM(t, domain, notAfter), 0600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
}

func TestRenewalWindowRule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"expires well beyond window", now.Add(60 * 24 * time.Hour), false},
		{"expires just beyond window", now.Add(RenewalWindow + time.Second), false},
		{"expires exactly at window boundary", now.Add(RenewalWindow), true},
		{"expires inside window", now.Add(10 * 24 * time.Hour), true},
		{"already expired", now.Add(-24 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renewalRequired(tt.expiry, now); got != tt.want {
				t.Errorf("renewalRequired(%v, %v) = %v, want %v", tt.expiry, now, got, tt.want)
			}
		})
	}
}

func TestRenewalWindowRuleHoldsForArbitraryTimes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nowUnix := rapid.Int64Range(0, 4_000_000_000).Draw(t, "now")
		offsetSec := rapid.Int64Range(-365*24*3600, 365*24*3600).Draw(t, "offset")

		now := time.Unix(nowUnix, 0).UTC()
		expiry := now.Add(time.Duration(offsetSec) * time.Second)

		got := renewalRequired(expiry, now)
		want := !expiry.Add(-RenewalWindow).After(now)
		if got != want {
			t.Fatalf("renewalRequired(%v, %v) = %v, want %v", expiry, now, got, want)
		}

		// Renewal must always be required for anything expiring within the
		// window, expired certificates included.
		if offsetSec <= int64(RenewalWindow/time.Second) && !got {
			t.Fatalf("certificate expiring in %ds not flagged for renewal", offsetSec)
		}
	})
}

func TestIsRenewalRequiredForMissingCertificate(t *testing.T) {
	engine := NewRenewalEngine(t.TempDir())

	required, err := engine.IsRenewalRequired("never-issued.example")
	if err != nil {
		t.Fatalf("IsRenewalRequired: %v", err)
	}
	if !required {
		t.Error("first issuance must always be required")
	}
}

func TestIsRenewalRequiredReadsDeployedCertificate(t *testing.T) {
	root := t.TempDir()

	writeDeployedCert(t, root, "fresh.example", time.Now().Add(80*24*time.Hour))
	writeDeployedCert(t, root, "stale.example", time.Now().Add(5*24*time.Hour))

	engine := NewRenewalEngine(root)

	if required, err := engine.IsRenewalRequired("fresh.example"); err != nil || required {
		t.Errorf("fresh certificate: required=%v err=%v", required, err)
	}
	if required, err := engine.IsRenewalRequired("stale.example"); err != nil || !required {
		t.Errorf("stale certificate: required=%v err=%v", required, err)
	}
}

func TestCertificateExpiryRejectsGarbage(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken.example")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, leafCertFile), []byte("not a pem"), 0600); err != nil {
		t.Fatal(err)
	}

	engine := NewRenewalEngine(root)
	if _, err := engine.CertificateExpiry("broken.example"); !errors.Is(err, ErrUnreadableCertificate) {
		t.Errorf("got %v, want ErrUnreadableCertificate", err)
	}
}

func TestCertificateExpiryMatchesDeployedNotAfter(t *testing.T) {
	root := t.TempDir()
	notAfter := time.Date(2026, 11, 20, 8, 30, 0, 0, time.UTC)
	writeDeployedCert(t, root, "app.example", notAfter)

	engine := NewRenewalEngine(root)
	expiry, err := engine.CertificateExpiry("app.example")
	if err != nil {
		t.Fatalf("CertificateExpiry: %v", err)
	}
	if !expiry.Equal(notAfter) {
		t.Errorf("expiry = %v, want %v", expiry, notAfter)
	}
}
