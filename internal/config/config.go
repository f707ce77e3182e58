package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API/worker process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Journey   JourneyConfig
	Dialer    DialerConfig
	Providers ProvidersConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// JourneyConfig controls the journey automation workers.
type JourneyConfig struct {
	// EnrollInterval is the enrollment sweep period.
	EnrollInterval time.Duration
	// DispatchInterval is the execution dispatcher period.
	DispatchInterval time.Duration
	// ClaimBatchSize caps how many due executions one dispatcher tick claims.
	ClaimBatchSize int
	// MaxAttempts bounds transient retries per execution.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// DefaultTimezone applies when a tenant has no timezone configured.
	DefaultTimezone string
}

// DialerConfig controls the outbound pacing worker.
type DialerConfig struct {
	// PaceInterval is the pacer tick period.
	PaceInterval time.Duration
	// PlacementDelay is the pause between consecutive call placements in a batch.
	PlacementDelay time.Duration
	// AttemptCooldown blocks re-dialing a lead attempted within this window.
	AttemptCooldown time.Duration
	// ConcurrencyCapTTL bounds how long an in-flight call slot can leak.
	ConcurrencyCapTTL time.Duration
	// AgentStatusTTL is the cache lifetime for agent capacity snapshots.
	AgentStatusTTL time.Duration
}

// ProvidersConfig points the process at its upstream provider APIs.
type ProvidersConfig struct {
	// PBXBaseURL is the call-control API used for placement and agent status.
	PBXBaseURL string
	PBXAPIKey  string
	// MessagingBaseURL is the SMS/email gateway API.
	MessagingBaseURL string
	MessagingAPIKey  string
	// RequestTimeout applies to every outbound provider call.
	RequestTimeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Journey.EnrollInterval = mustDuration("JOURNEY_ENROLL_INTERVAL")
	c.Journey.DispatchInterval = mustDuration("JOURNEY_DISPATCH_INTERVAL")
	c.Journey.ClaimBatchSize = optionalInt("JOURNEY_CLAIM_BATCH")
	c.Journey.MaxAttempts = optionalInt("JOURNEY_MAX_ATTEMPTS")
	c.Journey.BackoffBase = mustDuration("JOURNEY_BACKOFF_BASE")
	c.Journey.BackoffCap = mustDuration("JOURNEY_BACKOFF_CAP")
	c.Journey.DefaultTimezone = strings.TrimSpace(os.Getenv("JOURNEY_DEFAULT_TZ"))

	c.Dialer.PaceInterval = mustDuration("DIALER_PACE_INTERVAL")
	c.Dialer.PlacementDelay = mustDuration("DIALER_PLACEMENT_DELAY")
	c.Dialer.AttemptCooldown = mustDuration("DIALER_ATTEMPT_COOLDOWN")
	c.Dialer.ConcurrencyCapTTL = mustDuration("DIALER_CAP_TTL")
	c.Dialer.AgentStatusTTL = mustDuration("DIALER_AGENT_STATUS_TTL")

	c.Providers.PBXBaseURL = strings.TrimSpace(os.Getenv("PBX_BASE_URL"))
	c.Providers.PBXAPIKey = os.Getenv("PBX_API_KEY")
	c.Providers.MessagingBaseURL = strings.TrimSpace(os.Getenv("MSG_GATEWAY_BASE_URL"))
	c.Providers.MessagingAPIKey = os.Getenv("MSG_GATEWAY_API_KEY")
	c.Providers.RequestTimeout = mustDuration("PROVIDER_REQUEST_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// Worker defaults. Env overrides exist for tuning, not correctness.
	if c.Journey.EnrollInterval <= 0 {
		c.Journey.EnrollInterval = 5 * time.Minute
	}
	if c.Journey.DispatchInterval <= 0 {
		c.Journey.DispatchInterval = 30 * time.Second
	}
	if c.Journey.ClaimBatchSize <= 0 {
		c.Journey.ClaimBatchSize = 50
	}
	if c.Journey.MaxAttempts <= 0 {
		c.Journey.MaxAttempts = 3
	}
	if c.Journey.BackoffBase <= 0 {
		c.Journey.BackoffBase = 1 * time.Minute
	}
	if c.Journey.BackoffCap <= 0 {
		c.Journey.BackoffCap = 30 * time.Minute
	}
	if c.Journey.BackoffCap < c.Journey.BackoffBase {
		errs = append(errs, errors.New("JOURNEY_BACKOFF_CAP must be >= JOURNEY_BACKOFF_BASE"))
	}
	if c.Journey.DefaultTimezone == "" {
		c.Journey.DefaultTimezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Journey.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("JOURNEY_DEFAULT_TZ is not a valid IANA zone: %q", c.Journey.DefaultTimezone))
	}

	if c.Dialer.PaceInterval <= 0 {
		c.Dialer.PaceInterval = 30 * time.Second
	}
	if c.Dialer.PlacementDelay <= 0 {
		c.Dialer.PlacementDelay = 200 * time.Millisecond
	}
	if c.Dialer.AttemptCooldown <= 0 {
		c.Dialer.AttemptCooldown = 24 * time.Hour
	}
	if c.Dialer.ConcurrencyCapTTL <= 0 {
		c.Dialer.ConcurrencyCapTTL = 5 * time.Minute
	}
	if c.Dialer.AgentStatusTTL <= 0 {
		c.Dialer.AgentStatusTTL = 10 * time.Second
	}

	if c.Providers.PBXBaseURL == "" {
		errs = append(errs, errors.New("PBX_BASE_URL is required"))
	}
	if c.Providers.MessagingBaseURL == "" {
		errs = append(errs, errors.New("MSG_GATEWAY_BASE_URL is required"))
	}
	if c.Providers.RequestTimeout <= 0 {
		c.Providers.RequestTimeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
