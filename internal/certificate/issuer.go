package certificate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// IssueResult carries the issuance tool's output. Stderr is kept on success
// too: certbot reports non-fatal warnings there that are worth recording.
type IssueResult struct {
	Stdout string
	Stderr string
}

// CombinedLog joins stdout and stderr for storage in the certificate record
func (r *IssueResult) CombinedLog() string {
	out := strings.TrimSpace(r.Stdout)
	errOut := strings.TrimSpace(r.Stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// CommandRunner executes an external command and captures its output.
// Replaceable for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// execRunner runs commands through os/exec
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// Issuer drives certbot to obtain certificate material. Each attempt runs
// under a fresh work identifier used as certbot's certificate name, so the
// tool's internal state never mixes results between attempts.
type Issuer struct {
	bin        string
	webroot    string
	production bool
	runner     CommandRunner
	logger     *slog.Logger
}

// IssuerConfig contains configuration for Issuer
type IssuerConfig struct {
	// CertbotBin is the certbot executable path
	CertbotBin string
	// WebrootPath is the ACME HTTP-01 challenge webroot
	WebrootPath string
	// ProductionMode issues real certificates; otherwise --dry-run is used
	// to avoid rate-limit exhaustion
	ProductionMode bool
	Runner         CommandRunner
	Logger         *slog.Logger
}

// NewIssuer creates a new Issuer instance
func NewIssuer(cfg IssuerConfig) *Issuer {
	if cfg.CertbotBin == "" {
		cfg.CertbotBin = "certbot"
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Issuer{
		bin:        cfg.CertbotBin,
		webroot:    cfg.WebrootPath,
		production: cfg.ProductionMode,
		runner:     cfg.Runner,
		logger:     cfg.Logger,
	}
}

// Issue obtains certificate material for the domain. workDir must be unique
// per attempt. contactEmail is required by the CA for expiry and security
// notices.
func (i *Issuer) Issue(ctx context.Context, workDir, domain, contactEmail string) (*IssueResult, error) {
	args := []string{
		"certonly",
		"--webroot",
		"--noninteractive",
		"--agree-tos",
		"--email", contactEmail,
		"--cert-name", workDir,
		"-w", i.webroot,
		"-d", domain,
	}
	if !i.production {
		args = append(args, "--dry-run")
	}

	i.logger.Info("invoking issuance tool",
		"domain", domain,
		"work_dir", workDir,
		"production", i.production,
	)

	stdout, stderr, err := i.runner.Run(ctx, i.bin, args...)
	if err != nil {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrIssuanceFailed, msg)
	}

	return &IssueResult{Stdout: stdout, Stderr: stderr}, nil
}
