package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Environment names accepted by ERP_ENV.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Database drivers accepted by ERP_DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Tenant    TenantConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	// BaseDomain is the host suffix that tenant subdomains hang off, e.g.
	// "erp.local" for "demo.erp.local".
	BaseDomain string
}

// DatabaseConfig holds connection and pool policy for the system store and
// every tenant store.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	SSLMode  string
	// SQLiteDir holds one database file per tenant when Driver is sqlite.
	SQLiteDir string

	SystemName      string
	TenantPrefix    string
	TenantDatabases map[string]string

	MaxConns          int
	AcquireTimeout    time.Duration
	QueryTimeout      time.Duration
	HealthInterval    time.Duration
	FailureThreshold  int
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	RetryDelay        time.Duration
	AutoMigrate       bool
}

// RedisConfig holds Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// SessionConfig holds session token and cookie settings.
type SessionConfig struct {
	Secret       string //nolint:gosec // G117: session signing secret config
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
}

// TenantConfig holds tenant resolution settings.
type TenantConfig struct {
	HeaderName         string
	InternalToken      string //nolint:gosec // G117: internal call token
	ReservedSubdomains []string
}

// RateLimitConfig holds token bucket settings.
type RateLimitConfig struct {
	AuthRPS     float64
	AuthBurst   int
	TenantRPS   float64
	TenantBurst int
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// the session secret and DB password must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("ERP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxConns, err := getEnvInt("ERP_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	acquireTimeout, err := getEnvDuration("ERP_DB_ACQUIRE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	queryTimeout, err := getEnvDuration("ERP_DB_QUERY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	healthInterval, err := getEnvDuration("ERP_DB_HEALTH_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	failureThreshold, err := getEnvInt("ERP_DB_FAILURE_THRESHOLD", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reconnectDelay, err := getEnvDuration("ERP_DB_RECONNECT_DELAY", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reconnectAttempts, err := getEnvInt("ERP_DB_RECONNECT_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retryDelay, err := getEnvDuration("ERP_DB_RETRY_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	autoMigrate, err := getEnvBool("ERP_DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("ERP_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sessionTTL, err := getEnvDuration("ERP_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cookieSecure, err := getEnvBool("ERP_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("ERP_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("ERP_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	authRPS, err := getEnvFloat("ERP_AUTH_RPS", 1)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	authBurst, err := getEnvInt("ERP_AUTH_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tenantRPS, err := getEnvFloat("ERP_TENANT_RPS", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tenantBurst, err := getEnvInt("ERP_TENANT_BURST", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tenantDatabases, err := getEnvMap("ERP_TENANT_DATABASES")
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Env: strings.ToLower(getEnv("ERP_ENV", EnvDevelopment)),
		Server: ServerConfig{
			Addr:         getEnv("ERP_SERVER_ADDR", ":3000"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("ERP_CORS_ORIGINS", []string{"http://localhost:3000"}),
			BaseDomain:   strings.ToLower(getEnv("ERP_BASE_DOMAIN", "localhost")),
		},
		Database: DatabaseConfig{
			Driver:            strings.ToLower(getEnv("ERP_DB_DRIVER", DriverPostgres)),
			Host:              getEnv("ERP_DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("ERP_DB_USER", "school_erp"),
			Password:          getEnv("ERP_DB_PASSWORD", ""),
			SSLMode:           getEnv("ERP_DB_SSLMODE", "disable"),
			SQLiteDir:         getEnv("ERP_DB_SQLITE_DIR", "./data"),
			SystemName:        getEnv("ERP_DB_SYSTEM_NAME", "school_erp_system"),
			TenantPrefix:      getEnv("ERP_DB_TENANT_PREFIX", "school_erp_trust_"),
			TenantDatabases:   tenantDatabases,
			MaxConns:          maxConns,
			AcquireTimeout:    acquireTimeout,
			QueryTimeout:      queryTimeout,
			HealthInterval:    healthInterval,
			FailureThreshold:  failureThreshold,
			ReconnectDelay:    reconnectDelay,
			ReconnectAttempts: reconnectAttempts,
			RetryDelay:        retryDelay,
			AutoMigrate:       autoMigrate,
		},
		Redis: RedisConfig{
			Addr:     getEnv("ERP_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ERP_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Session: SessionConfig{
			Secret:       getEnv("ERP_SESSION_SECRET", ""),
			TTL:          sessionTTL,
			CookieName:   getEnv("ERP_SESSION_COOKIE", "erp_session"),
			CookieSecure: cookieSecure,
		},
		Tenant: TenantConfig{
			HeaderName:         getEnv("ERP_TENANT_HEADER", "X-Tenant-Code"),
			InternalToken:      getEnv("ERP_INTERNAL_TOKEN", ""),
			ReservedSubdomains: getEnvList("ERP_RESERVED_SUBDOMAINS", []string{"www", "api", "admin"}),
		},
		RateLimit: RateLimitConfig{
			AuthRPS:     authRPS,
			AuthBurst:   authBurst,
			TenantRPS:   tenantRPS,
			TenantBurst: tenantBurst,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether error details and stacks must be withheld.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("ERP_ENV must be one of development, test, production, got %q", c.Env)
	}

	// Session secret is required (no insecure default).
	if c.Session.Secret == "" {
		return errors.New("ERP_SESSION_SECRET is required")
	}
	if len(c.Session.Secret) < 32 {
		return errors.New("ERP_SESSION_SECRET must be at least 32 characters")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.SSLMode == "disable" && c.IsProduction() {
			log.Warn().Msg("ERP_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
	case DriverSQLite:
		if c.Database.SQLiteDir == "" {
			return errors.New("ERP_DB_SQLITE_DIR is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("ERP_DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("ERP_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("ERP_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Database.AcquireTimeout <= 0 {
		return fmt.Errorf("ERP_DB_ACQUIRE_TIMEOUT must be positive, got %s", c.Database.AcquireTimeout)
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("ERP_DB_QUERY_TIMEOUT must be positive, got %s", c.Database.QueryTimeout)
	}
	if c.Database.HealthInterval <= 0 {
		return fmt.Errorf("ERP_DB_HEALTH_INTERVAL must be positive, got %s", c.Database.HealthInterval)
	}
	if c.Database.FailureThreshold < 1 {
		return fmt.Errorf("ERP_DB_FAILURE_THRESHOLD must be >= 1, got %d", c.Database.FailureThreshold)
	}
	if c.Database.ReconnectAttempts < 1 {
		return fmt.Errorf("ERP_DB_RECONNECT_ATTEMPTS must be >= 1, got %d", c.Database.ReconnectAttempts)
	}
	if c.Database.ReconnectDelay < 0 {
		return fmt.Errorf("ERP_DB_RECONNECT_DELAY must not be negative, got %s", c.Database.ReconnectDelay)
	}
	if c.Database.RetryDelay < 0 {
		return fmt.Errorf("ERP_DB_RETRY_DELAY must not be negative, got %s", c.Database.RetryDelay)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("ERP_SESSION_TTL must be positive, got %s", c.Session.TTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("ERP_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("ERP_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.RateLimit.AuthRPS <= 0 || c.RateLimit.AuthBurst < 1 {
		return fmt.Errorf("ERP_AUTH_RPS and ERP_AUTH_BURST must be positive, got %v/%d", c.RateLimit.AuthRPS, c.RateLimit.AuthBurst)
	}
	if c.RateLimit.TenantRPS <= 0 || c.RateLimit.TenantBurst < 1 {
		return fmt.Errorf("ERP_TENANT_RPS and ERP_TENANT_BURST must be positive, got %v/%d", c.RateLimit.TenantRPS, c.RateLimit.TenantBurst)
	}

	return nil
}

// DSN returns the PostgreSQL connection string for the named database.
func (c *DatabaseConfig) DSN(dbName string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, dbName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// getEnvMap parses "k1=v1,k2=v2". Keys are lowercased.
func getEnvMap(key string) (map[string]string, error) {
	result := make(map[string]string)
	for _, pair := range getEnvList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("parsing %s: entry %q is not key=value", key, pair)
		}
		result[strings.ToLower(k)] = v
	}
	return result, nil
}
