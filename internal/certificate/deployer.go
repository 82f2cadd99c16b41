package certificate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// artifactFiles are the four fixed artifacts certbot produces per attempt,
// relocated into the per-domain storage directory in this order.
var artifactFiles = []string{"cert.pem", "chain.pem", "fullchain.pem", "privkey.pem"}

// Deployer atomically stages certificate artifacts and writes the proxy
// routing config fragment. Artifact moves complete fully before the config
// fragment is written, so the proxy never observes a fragment pointing at
// partially moved files.
type Deployer struct {
	storageRoot  string
	configRoot   string
	toolLiveRoot string
	logger       *slog.Logger
}

// DeployerConfig contains configuration for Deployer
type DeployerConfig struct {
	// StorageRoot is the per-domain artifact destination
	StorageRoot string
	// ConfigRoot is where per-domain proxy config fragments are written
	ConfigRoot string
	// ToolLiveRoot is certbot's live output directory (move source)
	ToolLiveRoot string
	Logger       *slog.Logger
}

// NewDeployer creates a new Deployer instance
func NewDeployer(cfg DeployerConfig) *Deployer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Deployer{
		storageRoot:  cfg.StorageRoot,
		configRoot:   cfg.ConfigRoot,
		toolLiveRoot: cfg.ToolLiveRoot,
		logger:       cfg.Logger,
	}
}

// proxyConfig is the reverse proxy's declarative TLS fragment
type proxyConfig struct {
	TLS proxyTLS `yaml:"tls"`
}

type proxyTLS struct {
	Certificates []proxyCertificate `yaml:"certificates"`
}

type proxyCertificate struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Deploy relocates the attempt's artifacts into the per-domain storage
// directory and then writes the routing config fragment.
func (d *Deployer) Deploy(workDir, domain string, issued *IssueResult) error {
	domainDir := filepath.Join(d.storageRoot, domain)
	if err := os.MkdirAll(domainDir, 0700); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryCreateFailed, err)
	}

	srcDir := filepath.Join(d.toolLiveRoot, workDir)
	for _, name := range artifactFiles {
		src := filepath.Join(srcDir, name)
		dst := filepath.Join(domainDir, name)
		if err := os.Rename(src, dst); err != nil {
			// Move failures here are usually a symptom of an earlier
			// partial issuance, so the tool log goes into the message.
			return fmt.Errorf("%w: %s: %v (tool output: %s)",
				ErrArtifactMoveFailed, name, err, issued.CombinedLog())
		}
	}

	if err := d.writeConfigFragment(domain, domainDir); err != nil {
		return err
	}

	d.logger.Info("certificate deployed", "domain", domain, "dir", domainDir)
	return nil
}

// writeConfigFragment writes <config-root>/<domain>.yml via a temp file and
// rename, so the proxy's config watcher never reads a half-written fragment.
func (d *Deployer) writeConfigFragment(domain, domainDir string) error {
	fragment := proxyConfig{
		TLS: proxyTLS{
			Certificates: []proxyCertificate{
				{
					CertFile: filepath.Join(domainDir, "fullchain.pem"),
					KeyFile:  filepath.Join(domainDir, "privkey.pem"),
				},
			},
		},
	}

	data, err := yaml.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}

	if err := os.MkdirAll(d.configRoot, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}

	target := filepath.Join(d.configRoot, domain+".yml")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrConfigWriteFailed, err)
	}

	return nil
}
