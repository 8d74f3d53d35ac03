/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// trackd is the tracking-token service of the Lettera CMS: it issues and
// verifies reader tracking tokens and carries the administrative
// session-revocation path.
package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lettera/trackauth/pkg/audit"
	"github.com/lettera/trackauth/pkg/common"
	"github.com/lettera/trackauth/pkg/common/auth"
	commonhttp "github.com/lettera/trackauth/pkg/common/http"
	"github.com/lettera/trackauth/pkg/store"
)

// Config holds the service configuration.
type Config struct {
	RedisAddr     string `env:"TRACKAUTH_REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"TRACKAUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"TRACKAUTH_REDIS_DB,default=0"`

	// Base64-encoded HS256 signing secret, decoded once at startup and
	// injected into the codec.
	TokenSecret string `env:"TRACKAUTH_TOKEN_SECRET,required"`
	AdminToken  string `env:"TRACKAUTH_ADMIN_TOKEN,required"`

	TokenTTL        time.Duration `env:"TRACKAUTH_TOKEN_TTL,default=30m"`
	FailureLookback time.Duration `env:"TRACKAUTH_FAILURE_LOOKBACK,default=24h"`

	LogLevel  string `env:"TRACKAUTH_LOG_LEVEL,default=info"`
	LogPretty bool   `env:"TRACKAUTH_LOG_PRETTY,default=false"`
}

func main() {
	common.ImportDotenv()
	cfg := &Config{}
	if err := common.LoadEnvToStruct(cfg); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger, err := common.NewLogger(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	secret, err := base64.StdEncoding.DecodeString(cfg.TokenSecret)
	if err != nil {
		logger.Fatal("failed to decode TRACKAUTH_TOKEN_SECRET from base64", zap.Error(err))
	}
	if len(secret) == 0 {
		logger.Fatal("TRACKAUTH_TOKEN_SECRET decodes to an empty secret")
	}

	httpCfg, err := commonhttp.NewHTTPConfig()
	if err != nil {
		logger.Fatal("invalid HTTP configuration", zap.Error(err))
	}
	httpCfg.LogSettings(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	db := store.NewRedisStore(rdb)
	auditLog := audit.NewRedisAuditLogger(rdb)

	codec := auth.NewTokenCodec(secret)
	tokenSvc := auth.NewTokenService(codec, db, cfg.TokenTTL, logger)
	adminSvc := auth.NewAdminSessionService(db, auditLog, cfg.FailureLookback, logger)
	adminAuth := auth.NewAdminAuthenticator(cfg.AdminToken)

	router := createRouter(tokenSvc, adminSvc, db, adminAuth, logger)

	if httpCfg.Insecure {
		logger.Warn("starting plain HTTP server", zap.String("addr", httpCfg.InsecureAddr))
		if err := http.ListenAndServe(httpCfg.InsecureAddr, router); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
		return
	}

	tlsConfig, err := httpCfg.TLSConfig(logger)
	if err != nil {
		logger.Fatal("failed to build TLS configuration", zap.Error(err))
	}

	if httpCfg.HTTP3Enabled {
		h3Server := &http3.Server{
			Addr:      httpCfg.Addr,
			Handler:   router,
			TLSConfig: tlsConfig,
		}
		go func() {
			logger.Info("starting HTTP/3 server", zap.String("addr", httpCfg.Addr))
			if err := h3Server.ListenAndServeTLS(httpCfg.CertFile, httpCfg.KeyFile); err != nil {
				logger.Error("HTTP/3 server error", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:      httpCfg.Addr,
		Handler:   router,
		TLSConfig: tlsConfig,
	}
	logger.Info("starting HTTPS server", zap.String("addr", httpCfg.Addr))
	if err := server.ListenAndServeTLS(httpCfg.CertFile, httpCfg.KeyFile); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
