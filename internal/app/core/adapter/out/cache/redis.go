package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
	ledgerredis "github.com/JoeShih716/go-atm-ledger/pkg/redis"
)

// RedisCache 把帳戶快照以 JSON 存在 Redis，讓多個 ledger 行程共用
//
// 快取只是參考用：Redis 錯誤只記 log，Get 視為 miss，不影響交易
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

func NewRedisCache(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = ledgerredis.DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: keyPrefix, logger: logger}
}

func (c *RedisCache) key(accountID int64) string {
	return c.prefix + strconv.FormatInt(accountID, 10)
}

// Get 取得快照；不存在或 Redis 失敗都回傳 false
func (c *RedisCache) Get(ctx context.Context, accountID int64) (*domain.Account, bool) {
	raw, err := c.client.Get(ctx, c.key(accountID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache get failed", zap.Int64("account_id", accountID), zap.Error(err))
		}
		return nil, false
	}
	var acc domain.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		c.logger.Warn("redis cache entry corrupted", zap.Int64("account_id", accountID), zap.Error(err))
		return nil, false
	}
	return &acc, true
}

// Put 覆蓋快照，不設定過期時間
func (c *RedisCache) Put(ctx context.Context, account *domain.Account) {
	if account == nil {
		return
	}
	raw, err := json.Marshal(account)
	if err != nil {
		c.logger.Warn("redis cache encode failed", zap.Int64("account_id", account.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(account.ID), raw, 0).Err(); err != nil {
		c.logger.Warn("redis cache put failed", zap.Int64("account_id", account.ID), zap.Error(err))
	}
}

// Remove 移除快照
func (c *RedisCache) Remove(ctx context.Context, accountID int64) {
	if err := c.client.Del(ctx, c.key(accountID)).Err(); err != nil {
		c.logger.Warn("redis cache remove failed", zap.Int64("account_id", accountID), zap.Error(err))
	}
}

var _ usecase.AccountCache = (*RedisCache)(nil)
