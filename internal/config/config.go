package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the API process needs at startup.
// Values come from the environment only; packages below cmd/ never read env directly.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	RTB    RTBConfig
	NATS   NATSConfig
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

	// SSLMode accepts: disable, require, verify-ca, verify-full.
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type TwilioConfig struct {
	AccountSID string
	// AuthToken signs webhooks. Empty disables signature checks (local only).
	AuthToken string
	// WebhookBaseURL is the public origin Twilio calls, e.g. https://api.example.com.
	// Needed behind proxies that rewrite the host or scheme.
	WebhookBaseURL string
}

// RTBConfig tunes outbound bid requests.
type RTBConfig struct {
	// DefaultTimeout applies to targets with no timeout of their own.
	DefaultTimeout   time.Duration
	UserAgent        string
	MaxResponseBytes int64

	// TargetCacheTTL bounds how stale a cached campaign target list may be.
	TargetCacheTTL time.Duration
}

// NATSConfig is optional; auction records are only published when URL is set.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

const (
	defaultRTBTimeout        = 3 * time.Second
	defaultRTBUserAgent      = "CallCenterPro-RTB/1.0"
	defaultRTBMaxBytes       = 1 << 20
	defaultTargetCacheTTL    = 30 * time.Second
	defaultNATSSubjectPrefix = "rtb.auctions"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs errList

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = parseErrs.num(requiredInt("APP_PORT"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = parseErrs.num(requiredInt("DB_PORT"))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = parseErrs.num(requiredInt("REDIS_PORT"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_WEBHOOK_BASE_URL")), "/")

	// RTB settings are optional; Validate fills defaults.
	c.RTB.DefaultTimeout = time.Duration(parseErrs.num(optionalInt("RTB_DEFAULT_TIMEOUT_MS"))) * time.Millisecond
	c.RTB.UserAgent = strings.TrimSpace(os.Getenv("RTB_USER_AGENT"))
	c.RTB.MaxResponseBytes = int64(parseErrs.num(optionalInt("RTB_MAX_RESPONSE_BYTES")))
	c.RTB.TargetCacheTTL = parseErrs.dur(optionalDuration("RTB_TARGET_CACHE_TTL"))

	c.NATS.URL = strings.TrimSpace(os.Getenv("NATS_URL"))
	c.NATS.SubjectPrefix = strings.TrimSpace(os.Getenv("NATS_SUBJECT_PREFIX"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if !validPort(c.Redis.Port) {
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
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
	}

	switch {
	case c.RTB.DefaultTimeout == 0:
		c.RTB.DefaultTimeout = defaultRTBTimeout
	case c.RTB.DefaultTimeout < 0 || c.RTB.DefaultTimeout > time.Minute:
		errs = append(errs, fmt.Errorf("RTB_DEFAULT_TIMEOUT_MS must be between 1 and 60000, got %d", c.RTB.DefaultTimeout.Milliseconds()))
	}
	if c.RTB.UserAgent == "" {
		c.RTB.UserAgent = defaultRTBUserAgent
	}
	switch {
	case c.RTB.MaxResponseBytes == 0:
		c.RTB.MaxResponseBytes = defaultRTBMaxBytes
	case c.RTB.MaxResponseBytes < 0:
		errs = append(errs, fmt.Errorf("RTB_MAX_RESPONSE_BYTES must be positive, got %d", c.RTB.MaxResponseBytes))
	}
	switch {
	case c.RTB.TargetCacheTTL == 0:
		c.RTB.TargetCacheTTL = defaultTargetCacheTTL
	case c.RTB.TargetCacheTTL < 0:
		errs = append(errs, fmt.Errorf("RTB_TARGET_CACHE_TTL must not be negative, got %s", c.RTB.TargetCacheTTL))
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = defaultNATSSubjectPrefix
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PostgresDSN contains the password; never log it.
func (c Config) PostgresDSN() string {
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

func requiredInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return parseInt(key, v)
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	return parseInt(key, v)
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s, got %q", key, v)
	}
	return d, nil
}

// errList gathers parse errors so Load can report every bad variable at once.
type errList []error

func (l *errList) num(n int, err error) int {
	if err != nil {
		*l = append(*l, err)
	}
	return n
}

func (l *errList) dur(d time.Duration, err error) time.Duration {
	if err != nil {
		*l = append(*l, err)
	}
	return d
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
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
