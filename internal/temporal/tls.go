package temporal

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig contains TLS configuration for the Temporal client.
type TLSConfig struct {
	// Enabled enables TLS for the connection.
	Enabled bool

	// CertPath and KeyPath locate the PEM client certificate and key.
	CertPath string
	KeyPath  string

	// CACertPath locates the PEM CA bundle used to verify the frontend.
	CACertPath string

	// ServerName is the expected server name for certificate verification.
	ServerName string
}

// buildTLSConfig creates a *tls.Config, or nil when TLS is disabled.
func (t *TLSConfig) buildTLSConfig() (*tls.Config, error) {
	if t == nil || !t.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		ServerName: t.ServerName,
		MinVersion: tls.VersionTLS12,
	}

	if (t.CertPath == "") != (t.KeyPath == "") {
		return nil, fmt.Errorf("client certificate and key must be configured together")
	}
	if t.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if t.CACertPath != "" {
		caCert, err := os.ReadFile(t.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
