package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Certificates CertificatesConfig
	Mailer       MailerConfig
	Auth         AuthConfig
	Archive      ArchiveConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration for project cache invalidation
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CertificatesConfig holds the certificate lifecycle options
type CertificatesConfig struct {
	// SecurityEmail is the contact address passed to the CA and used as the
	// recipient of failure alerts
	SecurityEmail string
	// PrimaryDomain is the platform's own domain, exempt from CNAME checks
	PrimaryDomain string
	// ProxyTargetDomain is the expected CNAME target for custom domains
	ProxyTargetDomain string
	// ProductionMode selects real issuance; anything else runs certbot with --dry-run
	ProductionMode bool
	// DefaultLocale is the fallback locale for alert emails
	DefaultLocale string
	// StorageRoot is where deployed per-domain artifacts live
	StorageRoot string
	// ConfigRoot is where per-domain proxy config fragments are written
	ConfigRoot string
	// ToolLiveRoot is certbot's live output directory (source of artifact moves)
	ToolLiveRoot string
	// CertbotBin is the certbot executable path
	CertbotBin string
	// WebrootPath is the ACME HTTP-01 challenge webroot
	WebrootPath string
	// DNSTimeout bounds CNAME lookups during validation
	DNSTimeout time.Duration
	// MaxConcurrentRuns limits parallel orchestrator executions
	MaxConcurrentRuns int
}

// MailerConfig holds outbound alert mail configuration
type MailerConfig struct {
	// Driver selects the dispatcher: "postmark" or "dev" (log only)
	Driver               string
	PostmarkServerToken  string
	PostmarkAccountToken string
	SenderEmail          string
	SenderName           string
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	TokenSecret string
	Issuer      string
}

// ArchiveConfig holds the optional encrypted S3 artifact archive configuration
type ArchiveConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	// EncryptionKey must be 32 bytes (hex-encoded in the environment)
	EncryptionKey string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "certd"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Certificates: CertificatesConfig{
			SecurityEmail:     getEnv("CERTS_SECURITY_EMAIL", ""),
			PrimaryDomain:     getEnv("CERTS_PRIMARY_DOMAIN", ""),
			ProxyTargetDomain: getEnv("CERTS_PROXY_TARGET_DOMAIN", ""),
			ProductionMode:    getBoolEnv("CERTS_PRODUCTION", false),
			DefaultLocale:     getEnv("CERTS_DEFAULT_LOCALE", "en"),
			StorageRoot:       getEnv("CERTS_STORAGE_ROOT", "/storage/certificates"),
			ConfigRoot:        getEnv("CERTS_CONFIG_ROOT", "/storage/config"),
			ToolLiveRoot:      getEnv("CERTS_TOOL_LIVE_ROOT", "/etc/letsencrypt/live"),
			CertbotBin:        getEnv("CERTS_CERTBOT_BIN", "certbot"),
			WebrootPath:       getEnv("CERTS_WEBROOT_PATH", "/var/www/html"),
			DNSTimeout:        getDurationEnv("CERTS_DNS_TIMEOUT_SECONDS", 5*time.Second),
			MaxConcurrentRuns: getIntEnv("CERTS_MAX_CONCURRENT_RUNS", 5),
		},
		Mailer: MailerConfig{
			Driver:               getEnv("MAILER_DRIVER", "dev"),
			PostmarkServerToken:  getEnv("MAILER_POSTMARK_SERVER_TOKEN", ""),
			PostmarkAccountToken: getEnv("MAILER_POSTMARK_ACCOUNT_TOKEN", ""),
			SenderEmail:          getEnv("MAILER_SENDER_EMAIL", ""),
			SenderName:           getEnv("MAILER_SENDER_NAME", "Certificate Manager"),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("AUTH_TOKEN_SECRET", ""),
			Issuer:      getEnv("AUTH_TOKEN_ISSUER", "certd"),
		},
		Archive: ArchiveConfig{
			Enabled:         getBoolEnv("ARCHIVE_ENABLED", false),
			Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", "certificate-archive"),
			AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
			UseSSL:          getBoolEnv("ARCHIVE_S3_USE_SSL", true),
			EncryptionKey:   getEnv("ARCHIVE_ENCRYPTION_KEY", ""),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv returns boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getIntEnv returns integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getDurationEnv returns a duration in seconds from environment variable or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
