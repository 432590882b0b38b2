package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	AppEnv string

	HTTPAddr              string
	ShutdownTimeout       time.Duration
	ShutdownHTTPDrainTime time.Duration

	DBDriver       string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string
	AccessTokenTTL  time.Duration

	RefreshTokenTTL   time.Duration
	RefreshCookieName string
	RefreshCookiePath string

	PasswordBcryptCost   int
	ResetTokenTTL        time.Duration
	ResetRateLimitWindow time.Duration
	VerifyTokenTTL       time.Duration

	FrontendURL   string
	MailFrom      string
	MailTransport string
	MailStream    string

	CORSOrigins []string
	// TrustProxyHeaders honors X-Forwarded-For and X-Real-IP. Enable only
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool

	RateLimitBackend           string
	RateLimitFailureMode       string
	AuthRateLimitRPM           int
	PasswordForgotRateLimitRPM int
	APIRateLimitRPM            int

	LogLevel  string
	LogFormat string

	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
	OTELTraceSampleRatio      float64
}

// Load reads the process environment. Parse failures are reported as
// "parse KEY: ..." and rule violations as "validate config: ...".
func Load() (*Config, error) {
	cfg, err := load()
	profile := os.Getenv("APP_ENV")
	if err != nil {
		recordConfigValidationEvent(context.Background(), profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.AppEnv, "success", "none")
	return cfg, nil
}

func load() (*Config, error) {
	var errs []error
	p := &envParser{}
	cfg := &Config{
		AppEnv:                strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		HTTPAddr:              getEnv("HTTP_ADDR", ":3000"),
		ShutdownTimeout:       p.duration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		ShutdownHTTPDrainTime: p.duration("HTTP_DRAIN_TIMEOUT", 10*time.Second),

		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns: p.int("DB_MAX_IDLE_CONNS", 5),

		RedisEnabled:  p.bool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),

		JWTIssuer:       getEnv("JWT_ISSUER", "credential-session-service"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "credential-session-clients"),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		AccessTokenTTL:  p.duration("JWT_ACCESS_TTL", 15*time.Minute),

		RefreshTokenTTL:   p.duration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "refreshToken"),
		RefreshCookiePath: getEnv("REFRESH_COOKIE_PATH", "/api/v1/auth/refresh"),

		PasswordBcryptCost:   p.int("PASSWORD_BCRYPT_COST", 12),
		ResetTokenTTL:        p.duration("RESET_TOKEN_TTL", 15*time.Minute),
		ResetRateLimitWindow: p.duration("RESET_RATE_LIMIT_WINDOW", 15*time.Minute),
		VerifyTokenTTL:       p.duration("VERIFY_TOKEN_TTL", time.Hour),

		FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		MailFrom:      getEnv("MAIL_FROM", "no-reply@localhost"),
		MailTransport: strings.ToLower(getEnv("MAIL_TRANSPORT", "log")),
		MailStream:    getEnv("MAIL_STREAM", "mail:outbox"),

		CORSOrigins:       splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		TrustProxyHeaders: p.bool("TRUST_PROXY_HEADERS", false),

		RateLimitBackend:           strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "local")),
		RateLimitFailureMode:       strings.ToLower(getEnv("RATE_LIMIT_FAILURE_MODE", "fail_closed")),
		AuthRateLimitRPM:           p.int("AUTH_RATE_LIMIT_RPM", 30),
		PasswordForgotRateLimitRPM: p.int("PASSWORD_FORGOT_RATE_LIMIT_RPM", 5),
		APIRateLimitRPM:            p.int("API_RATE_LIMIT_RPM", 300),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		OTELMetricsEnabled:        p.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.bool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "credential-session-service"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", ""),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
		OTELTraceSampleRatio:      p.float("OTEL_TRACE_SAMPLE_RATIO", 1.0),
	}
	if cfg.OTELEnvironment == "" {
		cfg.OTELEnvironment = cfg.AppEnv
	}
	errs = append(errs, p.errs...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		problems = append(problems, "APP_ENV must be one of development, production, test")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "DB_DRIVER must be postgres or sqlite")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		problems = append(problems, "JWT_ACCESS_SECRET must be at least 32 bytes")
	}
	if c.PasswordBcryptCost < 12 || c.PasswordBcryptCost > 31 {
		problems = append(problems, "PASSWORD_BCRYPT_COST must be between 12 and 31")
	}
	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TTL":          c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":       c.RefreshTokenTTL,
		"RESET_TOKEN_TTL":         c.ResetTokenTTL,
		"RESET_RATE_LIMIT_WINDOW": c.ResetRateLimitWindow,
		"VERIFY_TOKEN_TTL":        c.VerifyTokenTTL,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	switch c.MailTransport {
	case "log":
	case "redis":
		if !c.RedisEnabled {
			problems = append(problems, "MAIL_TRANSPORT=redis requires REDIS_ENABLED=true")
		}
	default:
		problems = append(problems, "MAIL_TRANSPORT must be log or redis")
	}
	switch c.RateLimitBackend {
	case "local":
	case "redis":
		if !c.RedisEnabled {
			problems = append(problems, "RATE_LIMIT_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		problems = append(problems, "RATE_LIMIT_BACKEND must be local or redis")
	}
	if c.RateLimitFailureMode != "fail_open" && c.RateLimitFailureMode != "fail_closed" {
		problems = append(problems, "RATE_LIMIT_FAILURE_MODE must be fail_open or fail_closed")
	}
	if c.OTELTraceSampleRatio < 0 || c.OTELTraceSampleRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLE_RATIO must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }

// CookieSameSite mirrors the deployment: cross-site frontends in production
// need None, local development works with Lax.
func (c *Config) CookieSameSite() http.SameSite {
	if c.IsProduction() {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// LoadEnvFile seeds the environment from a dotenv file. Missing files are
// ignored and variables already present in the environment win.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set env %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	return nil
}

type envParser struct {
	errs []error
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: %w", key, err))
		return fallback
	}
	return d
}

func (p *envParser) int(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: %w", key, err))
		return fallback
	}
	return n
}

func (p *envParser) bool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: %w", key, err))
		return fallback
	}
	return b
}

func (p *envParser) float(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("parse %s: %w", key, err))
		return fallback
	}
	return f
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
