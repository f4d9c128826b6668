// Command server runs the poster BFF: the HTTP service that bridges the web
// client's session cookie to the upstream image-generation API.
//
// Startup order:
//  1. Load .env (best effort) and the validated Config (fail fast).
//  2. Configure zerolog (level, optional pretty console output).
//  3. Set up OpenTelemetry tracing when enabled.
//  4. Build the upstream client and session manager, wire the router.
//  5. Serve with the configured timeouts; drain gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-poster-bff/internal/config"
	httpapi "github.com/tbourn/go-poster-bff/internal/http"
	"github.com/tbourn/go-poster-bff/internal/observability"
	"github.com/tbourn/go-poster-bff/internal/session"
	"github.com/tbourn/go-poster-bff/internal/sysutil"
	"github.com/tbourn/go-poster-bff/internal/upstream"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; production injects real env vars.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	version = sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version)

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()

	up := upstream.NewClient(cfg.Upstream, &http.Client{})
	sessions := session.NewManager(
		cfg.Auth.SessionSecret,
		cfg.Auth.CookieName,
		cfg.Auth.SessionTTL,
		cfg.Auth.CookieSecure,
	)
	httpapi.RegisterRoutes(engine, up, sessions, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("version", version).
			Str("host", sysutil.Hostname()).
			Str("addr", srv.Addr).
			Str("upstream", cfg.Upstream.BaseURL).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
