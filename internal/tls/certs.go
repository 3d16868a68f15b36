// Package tls builds client TLS configuration for directory
// connections: a custom trust anchor for ldaps:// endpoints signed by a
// private CA, or verification skipping for lab setups.
package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// ClientConfig returns the TLS configuration for a directory
// connection. With an empty caFile and insecure false it returns nil,
// meaning the dialer's defaults apply. caFile, when set, must point to
// a PEM bundle that is added to the system roots.
func ClientConfig(caFile string, insecure bool) (*cryptotls.Config, error) {
	if caFile == "" && !insecure {
		return nil, nil
	}

	cfg := &cryptotls.Config{
		MinVersion:         cryptotls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec // explicit opt-in for lab setups
	}

	if caFile != "" {
		pool, err := loadPool(caFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// loadPool builds a certificate pool from the system roots plus the PEM
// bundle at path.
func loadPool(path string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	pem, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}

	return pool, nil
}
