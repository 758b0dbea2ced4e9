package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-atm-ledger/pkg/wal"
)

const (
	defaultLockTimeout    = 5 * time.Second
	defaultRefIDRetention = 24 * time.Hour
)

// walEntry WAL 中的一筆資料：開戶或一個已驗證過的交易
type walEntry struct {
	Kind      string            `json:"kind"`
	At        time.Time         `json:"at"`
	Account   *domain.Account   `json:"account,omitempty"`
	PINHash   string            `json:"pin_hash,omitempty"`
	Operation *domain.Operation `json:"operation,omitempty"`
}

const (
	walKindAccount   = "account"
	walKindOperation = "operation"
)

// accountRow 一個帳戶的「資料列」
//
//	lock: 容量 1 的 channel 當作 row lock，可搭配 ctx 逾時
//	account / history: 只能在持有 lock 時讀寫
//	pinHash: 開戶後不變
type accountRow struct {
	lock    chan struct{}
	account domain.Account
	pinHash string
	// 舊的在前
	history []domain.TransactionRecord
}

// MutexLedger 是一個記憶體帳本，每個帳戶一把 row lock，依帳戶 ID 由小到大上鎖
//
// 結構:
//
//	rows: 帳戶資料 Map (mu 只保護 Map 本身)
//	processed: 已處理過的交易 RefID 與入帳時間，超過 refIDRetention 的會被清掉
//	wal: Write-Ahead Log 實例 (nil 表示不持久化)
type MutexLedger struct {
	mu   sync.RWMutex
	rows map[int64]*accountRow

	processedMu    sync.Mutex
	processed      map[uuid.UUID]time.Time
	prunedAt       time.Time
	refIDRetention time.Duration

	nextRecordID atomic.Int64
	wal          *wal.WAL
	lockTimeout  time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// Option 設定 MutexLedger
type Option func(*MutexLedger)

// WithWAL 啟用 WAL
func WithWAL(w *wal.WAL) Option {
	return func(m *MutexLedger) { m.wal = w }
}

// WithLockTimeout 設定等待 row lock 的上限
func WithLockTimeout(d time.Duration) Option {
	return func(m *MutexLedger) {
		if d > 0 {
			m.lockTimeout = d
		}
	}
}

// WithLogger 設定 logger
func WithLogger(l *zap.Logger) Option {
	return func(m *MutexLedger) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRefIDRetention 設定 RefID 去重要記住多久，0 表示永久保留
//
// 超過保留時間再重送同一個 RefID 會被當成新的交易
func WithRefIDRetention(d time.Duration) Option {
	return func(m *MutexLedger) {
		if d >= 0 {
			m.refIDRetention = d
		}
	}
}

// WithClock 替換時間來源 (測試用)
func WithClock(now func() time.Time) Option {
	return func(m *MutexLedger) { m.now = now }
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	accounts: 初始帳戶資料 (不寫入 WAL)
//	opts: WAL、lock 逾時、logger 等選項
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(accounts map[int64]*domain.Account, opts ...Option) (*MutexLedger, error) {
	ledger := &MutexLedger{
		rows:        make(map[int64]*accountRow, len(accounts)),
		processed:   make(map[uuid.UUID]time.Time),
		lockTimeout:    defaultLockTimeout,
		refIDRetention: defaultRefIDRetention,
		logger:         zap.NewNop(),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(ledger)
	}
	for id, acc := range accounts {
		if acc == nil {
			continue
		}
		row := newAccountRow(acc, "")
		row.account.ID = id
		ledger.rows[id] = row
	}
	if ledger.wal != nil {
		if err := ledger.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return ledger, nil
}

func newAccountRow(acc *domain.Account, pinHash string) *accountRow {
	return &accountRow{
		lock:    make(chan struct{}, 1),
		account: *acc,
		pinHash: pinHash,
	}
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMutexLedger 呼叫，無需 Lock (單執行緒)
func (m *MutexLedger) recoverFromWAL() error {
	replayed := 0
	err := m.wal.ReadAll(func(jsonRaw []byte) error {
		var entry walEntry
		if err := json.Unmarshal(jsonRaw, &entry); err != nil {
			return err
		}
		switch entry.Kind {
		case walKindAccount:
			if entry.Account == nil {
				return fmt.Errorf("wal: account entry without account")
			}
			// 初始帳戶可能已經包含這個帳戶
			if _, ok := m.rows[entry.Account.ID]; !ok {
				m.rows[entry.Account.ID] = newAccountRow(entry.Account, entry.PINHash)
			}
		case walKindOperation:
			if entry.Operation == nil {
				return fmt.Errorf("wal: operation entry without operation")
			}
			if err := m.apply(entry.Operation, m.rowsFor(entry.Operation), entry.At, false); err != nil {
				return fmt.Errorf("wal: replay %s %s: %w", entry.Operation.Type, entry.Operation.RefID, err)
			}
		default:
			return fmt.Errorf("wal: unknown entry kind %q", entry.Kind)
		}
		replayed++
		return nil
	})
	if err != nil {
		return err
	}
	if torn := m.wal.TornBytes(); torn > 0 {
		m.logger.Warn("memory ledger dropped incomplete wal tail", zap.Int64("bytes", torn))
	}
	m.logger.Info("memory ledger recovered from wal", zap.Int("entries", replayed), zap.Int("accounts", len(m.rows)))
	return nil
}

// PostTransaction 處理交易請求
//
// 參數:
//
//	ctx: 上下文 (等待 row lock 時會另外套用 lockTimeout)
//	op: 交易請求物件
//
// 回傳:
//
//	error: 處理錯誤
func (m *MutexLedger) PostTransaction(ctx context.Context, op *domain.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.RefID == uuid.Nil {
		cp := *op
		cp.RefID = uuid.New()
		op = &cp
	}

	rows := m.rowsFor(op)

	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	release, err := lockRows(lockCtx, rows)
	if err != nil {
		m.logger.Warn("memory ledger lock failed", zap.Stringer("ref_id", op.RefID), zap.Error(err))
		return err
	}
	defer release()

	if m.isProcessed(op.RefID) {
		m.logger.Info("memory ledger transaction already processed", zap.Stringer("ref_id", op.RefID))
		return nil
	}
	return m.apply(op, rows, m.now(), true)
}

// apply 在已鎖定的資料列上執行交易核心邏輯
//
// 參數:
//
//	op: 交易物件
//	rows: 依 GetLockIDs 順序取得的資料列 (不存在的帳戶不在其中)
//	at: 交易時間
//	writeWAL: 是否先寫入 WAL (恢復時為 false)
func (m *MutexLedger) apply(op *domain.Operation, rows []*accountRow, at time.Time, writeWAL bool) error {
	snapshots := make(map[int64]*domain.Account, len(rows))
	for _, row := range rows {
		snapshots[row.account.ID] = row.account.Clone()
	}
	records, err := op.Apply(snapshots, at)
	if err != nil {
		return err
	}

	// 1. 寫入 WAL (Critical Path)，失敗則什麼都不改
	if writeWAL && m.wal != nil {
		if err := m.wal.Write(walEntry{Kind: walKindOperation, At: at, Operation: op}); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
		}
	}

	// 2. 套用到資料列
	for _, row := range rows {
		row.account = *snapshots[row.account.ID]
	}
	byID := make(map[int64]*accountRow, len(rows))
	for _, row := range rows {
		byID[row.account.ID] = row
	}
	for _, rec := range records {
		rec.ID = m.nextRecordID.Add(1)
		row := byID[rec.AccountID]
		row.history = append(row.history, rec)
	}
	m.markProcessed(op.RefID, at)

	m.logger.Debug("memory ledger transaction committed",
		zap.Stringer("ref_id", op.RefID),
		zap.Stringer("type", op.Type),
		zap.Stringer("amount", op.Amount))
	return nil
}

// rowsFor 依 GetLockIDs 的順序取得資料列
func (m *MutexLedger) rowsFor(op *domain.Operation) []*accountRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := op.GetLockIDs()
	rows := make([]*accountRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := m.rows[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func (m *MutexLedger) row(accountID int64) (*accountRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[accountID]
	return row, ok
}

// lockRows 依序取得 row lock，任何一把失敗就全部釋放
func lockRows(ctx context.Context, rows []*accountRow) (release func(), err error) {
	acquired := make([]*accountRow, 0, len(rows))
	release = func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i].lock
		}
	}
	for _, row := range rows {
		select {
		case row.lock <- struct{}{}:
			acquired = append(acquired, row)
		case <-ctx.Done():
			release()
			return nil, domain.NewStoreError("lock account rows", ctx.Err())
		}
	}
	return release, nil
}

func (m *MutexLedger) isProcessed(refID uuid.UUID) bool {
	m.processedMu.Lock()
	defer m.processedMu.Unlock()
	_, ok := m.processed[refID]
	return ok
}

func (m *MutexLedger) markProcessed(refID uuid.UUID, at time.Time) {
	m.processedMu.Lock()
	defer m.processedMu.Unlock()
	m.processed[refID] = at

	// 每過 1/4 保留時間掃一次
	if m.refIDRetention <= 0 || at.Sub(m.prunedAt) < m.refIDRetention/4 {
		return
	}
	cutoff := at.Add(-m.refIDRetention)
	for id, processedAt := range m.processed {
		if processedAt.Before(cutoff) {
			delete(m.processed, id)
		}
	}
	m.prunedAt = at
}

// FindAccount 取得帳戶快照
func (m *MutexLedger) FindAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	row, ok := m.row(accountID)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrAccountNotFound, accountID)
	}
	release, err := m.lockOne(ctx, row)
	if err != nil {
		return nil, err
	}
	defer release()
	return row.account.Clone(), nil
}

// ListTransactions 列出交易紀錄，新的在前；帳戶不存在回傳空陣列
func (m *MutexLedger) ListTransactions(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	row, ok := m.row(accountID)
	if !ok {
		return []domain.TransactionRecord{}, nil
	}
	release, err := m.lockOne(ctx, row)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]domain.TransactionRecord, len(row.history))
	copy(out, row.history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MutexLedger) lockOne(ctx context.Context, row *accountRow) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	return lockRows(lockCtx, []*accountRow{row})
}

// CreateAccount 開戶 (會寫入 WAL)
func (m *MutexLedger) CreateAccount(ctx context.Context, account *domain.Account, pinHash string) error {
	if err := account.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[account.ID]; ok {
		return fmt.Errorf("%w: id %d", domain.ErrAccountAlreadyExists, account.ID)
	}
	if m.wal != nil {
		entry := walEntry{Kind: walKindAccount, At: m.now(), Account: account.Clone(), PINHash: pinHash}
		if err := m.wal.Write(entry); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
		}
	}
	m.rows[account.ID] = newAccountRow(account, pinHash)
	m.logger.Info("memory ledger account created", zap.Int64("account_id", account.ID), zap.String("kind", string(account.Kind)))
	return nil
}

// GetPINHash 取得 PIN hash
func (m *MutexLedger) GetPINHash(ctx context.Context, accountID int64) (string, error) {
	row, ok := m.row(accountID)
	if !ok {
		return "", fmt.Errorf("%w: id %d", domain.ErrAccountNotFound, accountID)
	}
	if row.pinHash == "" {
		return "", fmt.Errorf("%w: id %d", domain.ErrPINNotSet, accountID)
	}
	return row.pinHash, nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
