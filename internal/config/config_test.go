package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32ch"

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "ERP_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "ERP_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "ERP_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			assert.Equal(t, tc.want, getEnv(tc.key, tc.fallback))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "ERP_TEST_INT_UNSET", fallback: 42, want: 42},
		{name: "parses valid int", key: "ERP_TEST_INT_VALID", setVal: strPtr("8080"), want: 8080},
		{name: "parses negative int", key: "ERP_TEST_INT_NEG", setVal: strPtr("-1"), want: -1},
		{name: "errors on non-numeric", key: "ERP_TEST_INT_NAN", setVal: strPtr("abc"), wantErr: true},
		{name: "errors on float", key: "ERP_TEST_INT_FLOAT", setVal: strPtr("3.14"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		setVal   *string
		fallback float64
		want     float64
		wantErr  bool
	}{
		{name: "returns fallback when unset", fallback: 1.5, want: 1.5},
		{name: "parses fraction", setVal: strPtr("0.25"), want: 0.25},
		{name: "parses integer", setVal: strPtr("20"), want: 20},
		{name: "errors on garbage", setVal: strPtr("fast"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			const key = "ERP_TEST_FLOAT"
			if tc.setVal != nil {
				t.Setenv(key, *tc.setVal)
			}

			got, err := getEnvFloat(key, tc.fallback)
			if tc.wantErr {
				require.ErrorContains(t, err, key)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback bool
		want     bool
		wantErr  bool
	}{
		{name: "fallback true when unset", key: "ERP_TEST_BOOL_UNSET", fallback: true, want: true},
		{name: "parses true", key: "ERP_TEST_BOOL_TRUE", setVal: strPtr("true"), want: true},
		{name: "parses 0", key: "ERP_TEST_BOOL_ZERO", setVal: strPtr("0"), fallback: true, want: false},
		{name: "errors on invalid", key: "ERP_TEST_BOOL_INV", setVal: strPtr("yes"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvBool(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "ERP_TEST_DUR_UNSET", fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses composite", key: "ERP_TEST_DUR_COMP", setVal: strPtr("1h30m"), want: 90 * time.Minute},
		{name: "parses millis", key: "ERP_TEST_DUR_MS", setVal: strPtr("100ms"), want: 100 * time.Millisecond},
		{name: "errors on bare number", key: "ERP_TEST_DUR_BARE", setVal: strPtr("30"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvMap(t *testing.T) {
	t.Run("empty when unset", func(t *testing.T) {
		got, err := getEnvMap("ERP_TEST_MAP_UNSET")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("parses pairs and lowercases keys", func(t *testing.T) {
		t.Setenv("ERP_TEST_MAP", "Demo=school_erp_trust_demo, north = trust_north")
		got, err := getEnvMap("ERP_TEST_MAP")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"demo":  "school_erp_trust_demo",
			"north": "trust_north",
		}, got)
	})

	t.Run("rejects entry without value", func(t *testing.T) {
		t.Setenv("ERP_TEST_MAP_BAD", "demo=,north=x")
		_, err := getEnvMap("ERP_TEST_MAP_BAD")
		require.ErrorContains(t, err, "ERP_TEST_MAP_BAD")
	})
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

func TestLoad_MissingSessionSecret(t *testing.T) {
	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "ERP_SESSION_SECRET")
}

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
	}{
		{name: "ENV unknown", envKey: "ERP_ENV", envVal: "staging"},
		{name: "DB_DRIVER unknown", envKey: "ERP_DB_DRIVER", envVal: "mysql"},
		{name: "DB_PORT not a number", envKey: "ERP_DB_PORT", envVal: "abc"},
		{name: "DB_PORT too high", envKey: "ERP_DB_PORT", envVal: "65536"},
		{name: "DB_MAX_CONNS zero", envKey: "ERP_DB_MAX_CONNS", envVal: "0"},
		{name: "DB_ACQUIRE_TIMEOUT zero", envKey: "ERP_DB_ACQUIRE_TIMEOUT", envVal: "0s"},
		{name: "DB_QUERY_TIMEOUT invalid", envKey: "ERP_DB_QUERY_TIMEOUT", envVal: "soon"},
		{name: "DB_HEALTH_INTERVAL negative", envKey: "ERP_DB_HEALTH_INTERVAL", envVal: "-1s"},
		{name: "DB_FAILURE_THRESHOLD zero", envKey: "ERP_DB_FAILURE_THRESHOLD", envVal: "0"},
		{name: "DB_RECONNECT_ATTEMPTS zero", envKey: "ERP_DB_RECONNECT_ATTEMPTS", envVal: "0"},
		{name: "DB_RETRY_DELAY negative", envKey: "ERP_DB_RETRY_DELAY", envVal: "-5ms"},
		{name: "DB_AUTO_MIGRATE not a bool", envKey: "ERP_DB_AUTO_MIGRATE", envVal: "sure"},
		{name: "SESSION_TTL zero", envKey: "ERP_SESSION_TTL", envVal: "0s"},
		{name: "AUTH_BURST zero", envKey: "ERP_AUTH_BURST", envVal: "0"},
		{name: "TENANT_RPS negative", envKey: "ERP_TENANT_RPS", envVal: "-2"},
		{name: "TENANT_DATABASES malformed", envKey: "ERP_TENANT_DATABASES", envVal: "demo"},
		{name: "REDIS_DB not a number", envKey: "ERP_REDIS_DB", envVal: "abc"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ERP_SESSION_SECRET", testSecret)
			t.Setenv(tc.envKey, tc.envVal)

			cfg, err := Load()
			require.Error(t, err, "expected error for %s=%q", tc.envKey, tc.envVal)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.envKey)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ERP_SESSION_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.False(t, cfg.IsProduction())

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "school_erp_system", cfg.Database.SystemName)
	assert.Equal(t, "school_erp_trust_", cfg.Database.TenantPrefix)
	assert.Empty(t, cfg.Database.TenantDatabases)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.AcquireTimeout)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 30*time.Second, cfg.Database.HealthInterval)
	assert.Equal(t, 3, cfg.Database.FailureThreshold)
	assert.Equal(t, 2*time.Second, cfg.Database.ReconnectDelay)
	assert.Equal(t, 5, cfg.Database.ReconnectAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Database.RetryDelay)
	assert.True(t, cfg.Database.AutoMigrate)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "erp_session", cfg.Session.CookieName)
	assert.False(t, cfg.Session.CookieSecure)

	assert.Equal(t, "X-Tenant-Code", cfg.Tenant.HeaderName)
	assert.Equal(t, []string{"www", "api", "admin"}, cfg.Tenant.ReservedSubdomains)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "localhost", cfg.Server.BaseDomain)
	assert.Equal(t, 10, cfg.RateLimit.AuthBurst)
}

func TestLoad_CustomValues(t *testing.T) {
	envs := map[string]string{
		"ERP_ENV":              "Production",
		"ERP_SESSION_SECRET":   testSecret,
		"ERP_DB_DRIVER":        "sqlite",
		"ERP_DB_SQLITE_DIR":    "/var/lib/erp",
		"ERP_DB_SYSTEM_NAME":   "erp_sys",
		"ERP_DB_TENANT_PREFIX": "trust_",
		"ERP_TENANT_DATABASES": "demo=legacy_demo",
		"ERP_DB_MAX_CONNS":     "4",
		"ERP_BASE_DOMAIN":      "ERP.Example.com",
		"ERP_INTERNAL_TOKEN":   "internal",
		"ERP_COOKIE_SECURE":    "true",
		"ERP_AUTH_RPS":         "0.5",
	}
	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/var/lib/erp", cfg.Database.SQLiteDir)
	assert.Equal(t, "erp_sys", cfg.Database.SystemName)
	assert.Equal(t, "trust_", cfg.Database.TenantPrefix)
	assert.Equal(t, map[string]string{"demo": "legacy_demo"}, cfg.Database.TenantDatabases)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, "erp.example.com", cfg.Server.BaseDomain)
	assert.Equal(t, "internal", cfg.Tenant.InternalToken)
	assert.True(t, cfg.Session.CookieSecure)
	assert.InDelta(t, 0.5, cfg.RateLimit.AuthRPS, 1e-9)
}

// ---------------------------------------------------------------------------
// DSN() output format
// ---------------------------------------------------------------------------

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	cfg := DatabaseConfig{Host: "db.prod", Port: 5433, User: "erp", Password: "p@ss!", SSLMode: "require"}
	assert.Equal(t,
		"host=db.prod port=5433 user=erp password=p@ss! dbname=school_erp_trust_demo sslmode=require",
		cfg.DSN("school_erp_trust_demo"),
	)
}

// ---------------------------------------------------------------------------
// validate() direct tests
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	validBase := func() *Config {
		return &Config{
			Env: EnvTest,
			Database: DatabaseConfig{
				Driver: DriverPostgres, Port: 5432, MaxConns: 10,
				AcquireTimeout: time.Second, QueryTimeout: time.Second, HealthInterval: time.Second,
				FailureThreshold: 3, ReconnectAttempts: 5,
			},
			Session:   SessionConfig{Secret: testSecret, TTL: time.Hour},
			Server:    ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second},
			RateLimit: RateLimitConfig{AuthRPS: 1, AuthBurst: 10, TenantRPS: 1, TenantBurst: 1},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validBase().validate())
	})

	t.Run("secret too short fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Session.Secret = "only-31-characters-long-secret!"
		assert.ErrorContains(t, c.validate(), "ERP_SESSION_SECRET")
	})

	t.Run("secret exactly 32 chars passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Session.Secret = "exactly-32-characters-long-sec!!"
		assert.NoError(t, c.validate())
	})

	t.Run("sqlite without directory fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Database.Driver = DriverSQLite
		assert.ErrorContains(t, c.validate(), "ERP_DB_SQLITE_DIR")
	})

	t.Run("zero retry delay passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Database.RetryDelay = 0
		assert.NoError(t, c.validate())
	})
}

func strPtr(s string) *string { return &s }
