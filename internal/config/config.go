// Package config 載入 ledger 服務的 yaml 設定
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/pkg/logger"
	"github.com/JoeShih716/go-atm-ledger/pkg/mysql"
	"github.com/JoeShih716/go-atm-ledger/pkg/postgres"
	"github.com/JoeShih716/go-atm-ledger/pkg/redis"
)

const DefaultPath = "config/config.yaml"

// Ledger 儲存層種類
const (
	BackendMemory   = "memory"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// Cache 種類
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      logger.Config   `yaml:"log"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Cache    CacheConfig     `yaml:"cache"`
	Executor ExecutorConfig  `yaml:"executor"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LedgerConfig struct {
	Backend     string        `yaml:"backend"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// WALPath: memory backend 使用，空字串表示不寫 WAL
	WALPath string `yaml:"wal_path"`
	// RefIDRetention: memory backend 記住已處理 RefID 的時間，0 使用預設值 (24h)
	RefIDRetention time.Duration `yaml:"ref_id_retention"`
	// Migrate: 啟動時建立資料表 (mysql / postgres)
	Migrate      bool          `yaml:"migrate"`
	SeedAccounts []SeedAccount `yaml:"seed_accounts"`
}

// SeedAccount 啟動時若不存在就建立的帳戶
type SeedAccount struct {
	ID      int64  `yaml:"id"`
	Owner   string `yaml:"owner"`
	Type    string `yaml:"type"`
	Balance string `yaml:"balance"`
	PIN     string `yaml:"pin"`
}

// Account 轉成 domain.Account
func (s SeedAccount) Account() (*domain.Account, error) {
	kind, err := domain.ParseAccountKind(s.Type)
	if err != nil {
		return nil, fmt.Errorf("seed account %d: %w", s.ID, err)
	}
	balance := decimal.Zero
	if s.Balance != "" {
		if balance, err = decimal.NewFromString(s.Balance); err != nil {
			return nil, fmt.Errorf("seed account %d balance %q: %w", s.ID, s.Balance, err)
		}
	}
	acc := domain.NewAccount(s.ID, s.Owner, balance, kind)
	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("seed account %d: %w", s.ID, err)
	}
	return acc, nil
}

type CacheConfig struct {
	Backend string `yaml:"backend"`
	// RefreshOnWrite: 交易成功後主動刷新快取
	RefreshOnWrite bool              `yaml:"refresh_on_write"`
	Redis          redis.Config `yaml:"redis"`
}

type ExecutorConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Load 讀取設定檔
//
// path 為空時依序使用 LEDGER_CONFIG、DefaultPath；讀完後套用環境變數與預設值並檢查
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LEDGER_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse 解析 yaml 內容
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LEDGER_MYSQL_PASSWORD"); v != "" {
		c.MySQL.Password = v
	}
	if v := os.Getenv("LEDGER_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("LEDGER_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":50051"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Ledger.Backend = strings.ToLower(c.Ledger.Backend)
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = BackendMemory
	}
	if c.Ledger.LockTimeout == 0 {
		c.Ledger.LockTimeout = 5 * time.Second
	}
	c.MySQL.ApplyDefaults()
	c.Cache.Backend = strings.ToLower(c.Cache.Backend)
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Executor.Workers == 0 {
		c.Executor.Workers = 8
	}
	if c.Executor.QueueSize == 0 {
		c.Executor.QueueSize = 1024
	}
}

// Validate 檢查設定是否可用
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendMemory, BackendMySQL:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend))
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Ledger.LockTimeout < 0 {
		errs = append(errs, errors.New("ledger.lock_timeout must not be negative"))
	}
	if c.Executor.Workers < 0 || c.Executor.QueueSize < 0 {
		errs = append(errs, errors.New("executor.workers and executor.queue_size must not be negative"))
	}
	seen := make(map[int64]bool, len(c.Ledger.SeedAccounts))
	for _, seed := range c.Ledger.SeedAccounts {
		if seen[seed.ID] {
			errs = append(errs, fmt.Errorf("seed account %d listed twice", seed.ID))
		}
		seen[seed.ID] = true
		if _, err := seed.Account(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
