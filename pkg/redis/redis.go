package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "ledger:account:"

// Config 定義 Redis 連線設定
type Config struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NewClient 建立 go-redis client 並 Ping，失敗時會關閉 client
//
// 參數:
//
//	ctx: Ping 使用的上下文
//	cfg: 連線設定
//
// 回傳:
//
//	*goredis.Client: 可用的 client
//	error: 連線失敗
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
