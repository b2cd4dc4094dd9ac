// Package tls builds the HTTPS configuration for the REST listener.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/taskmgr/internal/config"
)

const (
	caFileName   = "tls_ca.crt"
	certFileName = "tls.crt"
	keyFileName  = "tls.key"
)

// SetupTLS returns the server TLS configuration, or nil when TLS is disabled.
// Explicit cert/key files win over a certificate directory; with AutoGenerate
// a self-signed pair is written to the directory when missing.
// The pair is checked once here and re-read on every handshake, so a
// renewed certificate is picked up without a restart.
func SetupTLS(server config.ServerConfig) (*tls.Config, error) {
	t := server.TLS
	if t == nil || !t.Enabled {
		return nil, nil
	}
	minVer, maxVer, err := versions(server.TLSMinVersion, server.TLSMaxVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := t.CertFile, t.KeyFile
	if certPath == "" || keyPath == "" {
		if t.Dir == "" {
			return nil, errors.New("TLS enabled but no valid certificate configuration found")
		}
		certPath = filepath.Join(t.Dir, certFileName)
		keyPath = filepath.Join(t.Dir, keyFileName)
		if t.AutoGenerate && !exists(certPath) && !exists(keyPath) {
			if err := generate(t, t.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	if _, err := loadPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	// #nosec G402 minimum version is configurable down to 1.2
	return &tls.Config{
		MinVersion: minVer,
		MaxVersion: maxVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return loadPair(certPath, keyPath)
		},
	}, nil
}

func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

func versions(minS, maxS string) (uint16, uint16, error) {
	minV, err := parseTLSVersion(minS)
	if err != nil {
		return 0, 0, err
	}
	maxV, err := parseTLSVersion(maxS)
	if err != nil {
		return 0, 0, err
	}
	if minV > maxV {
		return 0, 0, fmt.Errorf("tls_min_version %s is above tls_max_version %s", minS, maxS)
	}
	return minV, maxV, nil
}

func loadPair(certPath, keyPath string) (*tls.Certificate, error) {
	certPEM, err := os.ReadFile(filepath.Clean(certPath))
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return nil, err
	}
	c, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func orDefault[T string | []string](v, def T) T {
	if len(v) == 0 {
		return def
	}
	return v
}

func generate(t *config.TLSConfig, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	ag := t.AutoGen
	if ag == nil {
		ag = &config.AutoGenTLS{}
	}
	days := ag.ValidDays
	if days <= 0 {
		days = 365
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   orDefault(ag.CommonName, "localhost"),
		Organization: orDefault(ag.Organization, "taskmgr"),
		DNSNames:     orDefault(ag.DNSNames, []string{"localhost"}),
		IPAddresses:  orDefault(ag.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, days),
		CertPath:     filepath.Join(dir, certFileName),
		KeyPath:      filepath.Join(dir, keyFileName),
		CACertPath:   filepath.Join(dir, caFileName),
	})
}
