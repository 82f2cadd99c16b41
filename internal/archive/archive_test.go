package archive

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/stratohost/certd/internal/config"
)

// 32 bytes, hex-encoded.
const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestService(t *testing.T, key string) *Service {
	t.Helper()
	svc, err := NewService(&config.ArchiveConfig{
		Endpoint:        "localhost:9000",
		Region:          "us-east-1",
		Bucket:          "certificate-archive",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		EncryptionKey:   key,
	}, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewServiceRejectsInvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not hex", "zz" + testKey[2:]},
		{"too short", testKey[:32]},
		{"too long", testKey + "ff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(&config.ArchiveConfig{EncryptionKey: tt.key}, t.TempDir())
			if err == nil {
				t.Fatalf("NewService() accepted key %q", tt.key)
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	svc := newTestService(t, testKey)
	plaintext := []byte("-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n")

	sealed, err := svc.seal(plaintext)
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("BEGIN CERTIFICATE")) {
		t.Error("sealed blob contains plaintext")
	}

	got, err := svc.open(sealed)
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("open() = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshNonces(t *testing.T) {
	svc := newTestService(t, testKey)
	plaintext := []byte("same input")

	first, err := svc.seal(plaintext)
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	second, err := svc.seal(plaintext)
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("two seals of the same plaintext produced identical blobs")
	}
}

func TestOpenRejectsShortCiphertext(t *testing.T) {
	svc := newTestService(t, testKey)
	for _, sealed := range [][]byte{nil, {}, []byte("short")} {
		if _, err := svc.open(sealed); !errors.Is(err, ErrCiphertextTooShort) {
			t.Errorf("open(%d bytes) error = %v, want ErrCiphertextTooShort", len(sealed), err)
		}
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	svc := newTestService(t, testKey)
	sealed, err := svc.seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff

	if _, err := svc.open(sealed); err == nil {
		t.Error("open() accepted a tampered blob")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	svc := newTestService(t, testKey)
	other := newTestService(t, strings.Repeat("ab", 32))

	sealed, err := svc.seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	if _, err := other.open(sealed); err == nil {
		t.Error("open() decrypted a blob sealed under a different key")
	}
}

func TestSealOpenRoundTripHoldsForArbitraryData(t *testing.T) {
	svc := newTestService(t, testKey)
	rapid.Check(t, func(t *rapid.T) {
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "plaintext")

		sealed, err := svc.seal(plaintext)
		if err != nil {
			t.Fatalf("seal() error = %v", err)
		}
		got, err := svc.open(sealed)
		if err != nil {
			t.Fatalf("open() error = %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("open() = %x, want %x", got, plaintext)
		}
	})
}
