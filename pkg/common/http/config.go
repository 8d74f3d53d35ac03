// Package http holds the listener configuration shared by trackd's servers.
package http

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lettera/trackauth/pkg/common"
)

// HTTPConfig holds HTTP server specific configuration settings.
type HTTPConfig struct {
	Addr         string   `env:"TRACKAUTH_HTTP_ADDR,default=:8443"`
	CertFile     string   `env:"TRACKAUTH_HTTP_CERT_FILE"`
	KeyFile      string   `env:"TRACKAUTH_HTTP_KEY_FILE"`
	InsecureAddr string   `env:"TRACKAUTH_HTTP_INSECURE_ADDR,default=:8080"`
	Hostname     string   `env:"TRACKAUTH_HTTP_HOSTNAME"` // Hostname for Let's Encrypt
	HTTP2Enabled bool     `env:"TRACKAUTH_HTTP_HTTP2_ENABLED,default=true"`
	HTTP3Enabled bool     `env:"TRACKAUTH_HTTP_HTTP3_ENABLED,default=false"`
	Insecure     bool     `env:"TRACKAUTH_HTTP_INSECURE,default=false"` // Plain HTTP listener instead of TLS
	Origins      []string `env:"TRACKAUTH_HTTP_ALLOWED_ORIGINS"`
}

// NewHTTPConfig creates an HTTPConfig populated from environment variables.
func NewHTTPConfig() (*HTTPConfig, error) {
	cfg := &HTTPConfig{}
	if err := common.LoadEnvToStruct(cfg); err != nil {
		return nil, fmt.Errorf("error loading HTTP config from environment: %w", err)
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("HTTP address (TRACKAUTH_HTTP_ADDR) must not be empty")
	}

	// If one of CertFile or KeyFile is provided, the other must be too.
	if (cfg.CertFile != "") != (cfg.KeyFile != "") {
		return nil, fmt.Errorf("TRACKAUTH_HTTP_CERT_FILE and TRACKAUTH_HTTP_KEY_FILE must be set together")
	}

	// HTTP/3 needs TLS: either static certificates or an autocert hostname.
	if cfg.HTTP3Enabled && cfg.Hostname == "" && cfg.CertFile == "" {
		return nil, fmt.Errorf("HTTP/3 requires TRACKAUTH_HTTP_CERT_FILE/KEY_FILE or TRACKAUTH_HTTP_HOSTNAME for autocert")
	}
	if cfg.HTTP3Enabled && cfg.Insecure {
		return nil, fmt.Errorf("HTTP/3 cannot be combined with the insecure listener")
	}

	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"*"}
	}

	return cfg, nil
}

// LogSettings logs the HTTP-specific configuration settings.
func (c *HTTPConfig) LogSettings(log *zap.Logger) {
	log.Info("http listener configured",
		zap.String("addr", c.Addr),
		zap.Bool("http2", c.HTTP2Enabled),
		zap.Bool("http3", c.HTTP3Enabled),
		zap.Bool("insecure", c.Insecure),
		zap.String("hostname", c.Hostname),
		zap.Strings("allowedOrigins", c.Origins))
	if c.Insecure {
		log.Warn("running with plain HTTP listener, tokens travel unencrypted",
			zap.String("addr", c.InsecureAddr))
	}
}
