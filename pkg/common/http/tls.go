package http

import (
	"crypto/tls"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// TLSConfig builds the listener TLS configuration. Static certificate files
// win when they exist; otherwise a hostname enables automatic certificates
// via Let's Encrypt.
func (c *HTTPConfig) TLSConfig(log *zap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"http/1.1"},
	}
	if c.HTTP2Enabled {
		tlsConfig.NextProtos = append(tlsConfig.NextProtos, "h2")
	}
	if c.HTTP3Enabled {
		tlsConfig.NextProtos = append(tlsConfig.NextProtos, "h3")
	}

	_, certErr := os.Stat(c.CertFile)
	_, keyErr := os.Stat(c.KeyFile)
	if c.CertFile != "" && certErr == nil && keyErr == nil {
		// The standard library loads the files during server startup.
		log.Info("using static certificate files",
			zap.String("cert", c.CertFile),
			zap.String("key", c.KeyFile))
		return tlsConfig, nil
	}

	if c.Hostname == "" {
		log.Warn("no certificate files and no hostname for autocert; TLS will fail unless certificates appear")
		return tlsConfig, nil
	}

	certManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(c.Hostname),
		Cache:      autocert.DirCache("certs"),
		Email:      os.Getenv("LETSENCRYPT_EMAIL"),
	}

	tlsConfig.GetCertificate = certManager.GetCertificate
	tlsConfig.ClientAuth = tls.NoClientCert
	tlsConfig.NextProtos = append(tlsConfig.NextProtos, acme.ALPNProto)

	log.Info("automatic TLS certificates enabled", zap.String("hostname", c.Hostname))
	return tlsConfig, nil
}
