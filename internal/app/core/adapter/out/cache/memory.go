package cache

import (
	"context"
	"sync"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
)

// MemoryCache 行程內的帳戶快照快取 (map[int64]*domain.Account)
//
// 沒有 TTL，只有 Put 覆蓋與 Remove 移除；寫入 Ledger 的路徑不一定會更新這裡，所以可能是舊資料
type MemoryCache struct {
	accounts sync.Map
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get 取得快照副本
func (c *MemoryCache) Get(_ context.Context, accountID int64) (*domain.Account, bool) {
	v, ok := c.accounts.Load(accountID)
	if !ok {
		return nil, false
	}
	return v.(*domain.Account).Clone(), true
}

// Put 以 account.ID 覆蓋 (後寫入者勝)
func (c *MemoryCache) Put(_ context.Context, account *domain.Account) {
	if account == nil {
		return
	}
	c.accounts.Store(account.ID, account.Clone())
}

// Remove 移除快照
func (c *MemoryCache) Remove(_ context.Context, accountID int64) {
	c.accounts.Delete(accountID)
}

var _ usecase.AccountCache = (*MemoryCache)(nil)
