// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes every setting the
// service needs (server timeouts, logging, the upstream API location, session
// signing, identity-provider credentials, upload limits, rate limiting,
// observability) into one immutable struct built once at startup.
//
// Required deployment keys (UPSTREAM_BASE_URL, SESSION_SECRET, and the IDP_*
// trio when auth is enabled) fail fast here instead of surfacing as per-request
// 500s later.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-poster-bff")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// UpstreamConfig locates the external image-generation API and bounds the
// proxy's behavior against it.
type UpstreamConfig struct {
	BaseURL        string        // UPSTREAM_BASE_URL (required)
	AppPath        string        // UPSTREAM_APP_PATH, e.g. "/moviePosterImageGenerator"
	Timeout        time.Duration // per-call deadline for upstream requests
	RetryGET       bool          // one bounded retry for idempotent GETs only
	PageSize       int           // history page size used by lookup-by-id
	MaxLookupPages int           // hard cap on pages walked during lookup
}

// AuthConfig holds session-cookie signing and identity-provider settings.
type AuthConfig struct {
	Enabled       bool          // AUTH_ENABLED; disable only for local stubs/tests
	SessionSecret string        // SESSION_SECRET (required), HS256 signing key
	SessionTTL    time.Duration // lifetime of minted session cookies
	CookieName    string        // session cookie name
	CookieSecure  bool          // mark cookie Secure (HTTPS deployments)

	ClientID     string // IDP_CLIENT_ID
	ClientSecret string // IDP_CLIENT_SECRET
	Issuer       string // IDP_ISSUER, e.g. Cognito user-pool issuer URL
	RedirectURL  string // IDP_REDIRECT_URL, our /api/auth/callback absolute URL
}

// LimitsConfig bounds locally-validated request payloads before anything is
// forwarded upstream.
type LimitsConfig struct {
	MaxPromptChars        int   // generate prompt length cap (runes)
	EditMaxImageBytes     int64 // uploaded image size cap
	EditMaxPromptChars    int   // edit prompt length cap (runes)
	EditMaxNegPromptChars int   // negative prompt cap; longer input is truncated
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	Upstream UpstreamConfig
	Auth     AuthConfig
	Limits   LimitsConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Upstream
		Upstream: UpstreamConfig{
			BaseURL:        strings.TrimRight(getenv("UPSTREAM_BASE_URL", ""), "/"),
			AppPath:        normalizeBasePath(getenv("UPSTREAM_APP_PATH", "/moviePosterImageGenerator")),
			Timeout:        getdur("UPSTREAM_TIMEOUT", 10*time.Second),
			RetryGET:       getbool("UPSTREAM_RETRY_GET", true),
			PageSize:       getint("HISTORY_LOOKUP_PAGE_SIZE", 50),
			MaxLookupPages: getint("HISTORY_LOOKUP_MAX_PAGES", 10),
		},

		// Auth / session
		Auth: AuthConfig{
			Enabled:       getbool("AUTH_ENABLED", true),
			SessionSecret: getenv("SESSION_SECRET", ""),
			SessionTTL:    getdur("SESSION_TTL", 12*time.Hour),
			CookieName:    getenv("SESSION_COOKIE_NAME", "psn_session"),
			CookieSecure:  getbool("SESSION_COOKIE_SECURE", true),
			ClientID:      getenv("IDP_CLIENT_ID", ""),
			ClientSecret:  getenv("IDP_CLIENT_SECRET", ""),
			Issuer:        strings.TrimRight(getenv("IDP_ISSUER", ""), "/"),
			RedirectURL:   getenv("IDP_REDIRECT_URL", ""),
		},

		// Local validation limits
		Limits: LimitsConfig{
			MaxPromptChars:        getint("MAX_PROMPT_CHARS", 1000),
			EditMaxImageBytes:     int64(getint("EDIT_MAX_IMAGE_BYTES", 5<<20)),
			EditMaxPromptChars:    getint("EDIT_MAX_PROMPT_CHARS", 800),
			EditMaxNegPromptChars: getint("EDIT_MAX_NEG_PROMPT_CHARS", 800),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-poster-bff"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.Upstream.BaseURL == "" {
		return cfg, errors.New("UPSTREAM_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New("UPSTREAM_BASE_URL must be an absolute URL")
	}
	if cfg.Upstream.Timeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.Upstream.PageSize < 1 {
		return cfg, errors.New("HISTORY_LOOKUP_PAGE_SIZE must be >= 1")
	}
	if cfg.Upstream.MaxLookupPages < 1 {
		return cfg, errors.New("HISTORY_LOOKUP_MAX_PAGES must be >= 1")
	}
	if strings.TrimSpace(cfg.Auth.SessionSecret) == "" {
		return cfg, errors.New("SESSION_SECRET is required")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.Auth.Enabled {
		if cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" || cfg.Auth.Issuer == "" {
			return cfg, errors.New("IDP_CLIENT_ID, IDP_CLIENT_SECRET and IDP_ISSUER are required when AUTH_ENABLED")
		}
		if cfg.Auth.RedirectURL == "" {
			return cfg, errors.New("IDP_REDIRECT_URL is required when AUTH_ENABLED")
		}
	}
	if cfg.Limits.MaxPromptChars < 1 || cfg.Limits.EditMaxPromptChars < 1 || cfg.Limits.EditMaxNegPromptChars < 1 {
		return cfg, errors.New("prompt length limits must be >= 1")
	}
	if cfg.Limits.EditMaxImageBytes < 1 {
		return cfg, errors.New("EDIT_MAX_IMAGE_BYTES must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
