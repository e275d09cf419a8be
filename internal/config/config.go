package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/DrOksusu/dba-portal-auth/pkg/config"
)

const defaultSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"3002"`

	// PostgreSQL
	PostgresHost    string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort    int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER" envDefault:"dba_portal"`
	PostgresPass    string `env:"POSTGRES_PASSWORD" envDefault:"dba_portal_secret"`
	PostgresDB      string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL     string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns      int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns      int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryMillis int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis backs the verification send throttle. Empty host disables it.
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTPendingSecret string        `env:"JWT_PENDING_SECRET"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	PendingExpiry    time.Duration `env:"PENDING_PROFILE_EXPIRY" envDefault:"10m"`

	// Phone verification
	VerificationCodeTTL    time.Duration `env:"VERIFICATION_CODE_TTL" envDefault:"5m"`
	VerificationRateWindow time.Duration `env:"VERIFICATION_RATE_WINDOW" envDefault:"60s"`
	VerificationRateMax    int           `env:"VERIFICATION_RATE_MAX" envDefault:"3"`

	// Background sweeper
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	// CoolSMS. An empty API key logs codes instead of sending them.
	CoolSMSAPIKey    string `env:"COOLSMS_API_KEY"`
	CoolSMSAPISecret string `env:"COOLSMS_API_SECRET"`
	CoolSMSSender    string `env:"COOLSMS_SENDER"`
	CoolSMSBaseURL   string `env:"COOLSMS_BASE_URL" envDefault:"https://api.coolsms.co.kr"`

	// OAuth providers
	GoogleClientID  string `env:"GOOGLE_CLIENT_ID"`
	KakaoAPIBaseURL string `env:"KAKAO_API_BASE_URL" envDefault:"https://kapi.kakao.com"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.VerificationRateMax < 1 {
		return nil, fmt.Errorf("VERIFICATION_RATE_MAX must be positive, got %d", cfg.VerificationRateMax)
	}
	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TOKEN_EXPIRY":  cfg.JWTAccessExpiry,
		"JWT_REFRESH_TOKEN_EXPIRY": cfg.JWTRefreshExpiry,
		"PENDING_PROFILE_EXPIRY":   cfg.PendingExpiry,
		"VERIFICATION_CODE_TTL":    cfg.VerificationCodeTTL,
		"VERIFICATION_RATE_WINDOW": cfg.VerificationRateWindow,
		"SWEEP_INTERVAL":           cfg.SweepInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	// Outside development, require explicitly set, strong and distinct secrets.
	if !cfg.IsDevelopment() {
		secrets := map[string]string{
			"JWT_ACCESS_SECRET":  cfg.JWTAccessSecret,
			"JWT_REFRESH_SECRET": cfg.JWTRefreshSecret,
		}
		if cfg.JWTPendingSecret != "" {
			secrets["JWT_PENDING_SECRET"] = cfg.JWTPendingSecret
		}
		for name, s := range secrets {
			if s == defaultSecret {
				return nil, fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, cfg.Environment)
			}
			if len(s) < 32 {
				return nil, fmt.Errorf("%s must be at least 32 characters long, got %d", name, len(s))
			}
		}
		if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
