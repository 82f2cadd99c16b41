// Package archive copies deployed certificate artifacts into encrypted
// off-site object storage. The archive is advisory: failures are logged by
// the caller and never block the certificate lifecycle.
package archive

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stratohost/certd/internal/config"
)

// Archive errors
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

var artifactFiles = []string{"cert.pem", "chain.pem", "fullchain.pem", "privkey.pem"}

// Service seals artifact files with AES-256-GCM and uploads them to
// S3-compatible storage under <domain>/<file>.enc.
type Service struct {
	client      *s3.Client
	bucket      string
	storageRoot string
	key         []byte
}

// NewService creates a new Service instance. The encryption key is
// hex-encoded in configuration and must decode to 32 bytes.
func NewService(cfg *config.ArchiveConfig, storageRoot string) (*Service, error) {
	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode archive encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}

	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + endpointURL
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // MinIO compatibility
	})

	return &Service{
		client:      client,
		bucket:      cfg.Bucket,
		storageRoot: storageRoot,
		key:         key,
	}, nil
}

// Archive seals and uploads the deployed artifacts for the domain.
func (s *Service) Archive(ctx context.Context, domain string) error {
	stamp := time.Now().UTC().Format("20060102T150405Z")

	for _, name := range artifactFiles {
		data, err := os.ReadFile(filepath.Join(s.storageRoot, domain, name))
		if err != nil {
			return fmt.Errorf("failed to read artifact %s for %q: %w", name, domain, err)
		}

		sealed, err := s.seal(data)
		if err != nil {
			return fmt.Errorf("failed to seal artifact %s for %q: %w", name, domain, err)
		}

		key := fmt.Sprintf("%s/%s/%s.enc", domain, stamp, name)
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(sealed),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			return fmt.Errorf("failed to upload artifact %s for %q: %w", name, domain, err)
		}
	}
	return nil
}

// seal encrypts plaintext with AES-256-GCM, nonce prepended.
func (s *Service) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a sealed blob produced by seal.
func (s *Service) open(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Restore downloads and decrypts one archived artifact.
func (s *Service) Restore(ctx context.Context, domain, stamp, name string) ([]byte, error) {
	key := fmt.Sprintf("%s/%s/%s.enc", domain, stamp, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archived artifact %s: %w", key, err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived artifact %s: %w", key, err)
	}
	return s.open(sealed)
}
