package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("DEPOSIT_ADDRESS", "custodial-address")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, StoreMemory, cfg.Store.Backend)
	require.Equal(t, "custodial-address", cfg.DepositAddress)
	require.True(t, cfg.Reconciler.Enabled)
	require.Equal(t, time.Minute, cfg.Reconciler.Interval)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depositd.yaml")
	content := `
listen: ":9090"
rpc_url: "https://rpc.example.com"
deposit_address: "custodial-address"
allowed_origins: ["https://dashboard.example.com"]
store:
  backend: postgres
  postgres_dsn: "postgres://localhost/deposits"
rate_limit:
  requests_per_second: 5
  burst: 10
reconciler:
  enabled: true
  interval: 30s
  scan_limit: 200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, StorePostgres, cfg.Store.Backend)
	require.Equal(t, "postgres://localhost/deposits", cfg.Store.PostgresDSN)
	require.Equal(t, 30*time.Second, cfg.Reconciler.Interval)
	require.Equal(t, 200, cfg.Reconciler.ScanLimit)
	require.Equal(t, []string{"https://dashboard.example.com"}, cfg.AllowedOrigins)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depositd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deposit_address: from-file\nlisten: \":9090\"\n"), 0o600))

	t.Setenv("DEPOSIT_ADDRESS", "from-env")
	t.Setenv("RATE_LIMIT_RPS", "3")
	t.Setenv("RECONCILER_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.DepositAddress)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, 3, cfg.RateLimit.RequestsPerSecond)
	require.False(t, cfg.Reconciler.Enabled)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.DepositAddress = "custodial-address"
		return cfg
	}

	t.Run("missing deposit address", func(t *testing.T) {
		cfg := Default()
		require.Error(t, cfg.Validate())
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		cfg := base()
		cfg.Store.Backend = StorePostgres
		require.Error(t, cfg.Validate())
	})

	t.Run("redis without addr", func(t *testing.T) {
		cfg := base()
		cfg.Store.Backend = StoreRedis
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := base()
		cfg.Store.Backend = "etcd"
		require.Error(t, cfg.Validate())
	})

	t.Run("bad rate limit", func(t *testing.T) {
		cfg := base()
		cfg.RateLimit.Burst = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		require.NoError(t, cfg.Validate())
	})
}
