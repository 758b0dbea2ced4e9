package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.False(t, cfg.Cache.RefreshOnWrite)
	assert.Equal(t, 8, cfg.Executor.Workers)
	assert.Equal(t, 1024, cfg.Executor.QueueSize)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParseFullFile(t *testing.T) {
	raw := `
server:
  addr: ":6000"
log:
  level: debug
ledger:
  backend: MySQL
  lock_timeout: 2s
  ref_id_retention: 1h
  seed_accounts:
    - {id: 1, owner: alice, type: CURRENT, balance: "500"}
    - {id: 2, owner: bob, type: savings, balance: "150.50", pin: "1234"}
mysql:
  host: db
  user: ledger
  db_name: atm
cache:
  backend: redis
  refresh_on_write: true
  redis:
    addr: "localhost:6379"
executor:
  workers: 2
  queue_size: 10
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, BackendMySQL, cfg.Ledger.Backend)
	assert.Equal(t, 2*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, time.Hour, cfg.Ledger.RefIDRetention)
	assert.True(t, cfg.Cache.RefreshOnWrite)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	require.Len(t, cfg.Ledger.SeedAccounts, 2)

	acc, err := cfg.Ledger.SeedAccounts[1].Account()
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKindSavings, acc.Kind)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, "1234", cfg.Ledger.SeedAccounts[1].PIN)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown backend", "ledger: {backend: oracle}"},
		{"postgres without dsn", "ledger: {backend: postgres}"},
		{"redis without addr", "cache: {backend: redis}"},
		{"unknown cache", "cache: {backend: memcached}"},
		{"bad seed kind", "ledger: {seed_accounts: [{id: 1, type: GOLD}]}"},
		{"seed below floor", "ledger: {seed_accounts: [{id: 1, type: SAVINGS, balance: \"10\"}]}"},
		{"bad seed balance", "ledger: {seed_accounts: [{id: 1, type: CURRENT, balance: \"abc\"}]}"},
		{"duplicate seed", "ledger: {seed_accounts: [{id: 1, type: CURRENT}, {id: 1, type: CURRENT}]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_MYSQL_PASSWORD", "from-env")
	t.Setenv("LEDGER_POSTGRES_DSN", "postgres://ledger@localhost/atm?sslmode=disable")
	t.Setenv("LEDGER_REDIS_ADDR", "redis:6379")

	cfg, err := Parse([]byte("ledger: {backend: postgres}\ncache: {backend: redis}"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MySQL.Password)
	assert.Equal(t, "postgres://ledger@localhost/atm?sslmode=disable", cfg.Postgres.DSN)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {addr: \":7000\"}"), 0o644))
	t.Setenv("LEDGER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
