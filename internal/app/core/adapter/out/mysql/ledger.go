package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
)

const (
	defaultLockTimeout = 5 * time.Second

	// MySQL error numbers
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	AccountID int64           `gorm:"column:account_id;primaryKey;autoIncrement:false"`
	OwnerName string          `gorm:"column:owner_name;size:128;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(19,4);not null"`
	Type      string          `gorm:"column:type;size:16;not null"`
	PINHash   *string         `gorm:"column:pin_hash;size:255"`
	UpdatedAt int64           `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (row *sqlAccount) toDomain() (*domain.Account, error) {
	kind, err := domain.ParseAccountKind(row.Type)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", row.AccountID, err)
	}
	return domain.NewAccount(row.AccountID, row.OwnerName, row.Balance, kind), nil
}

// sqlTransaction 對應資料庫的 transactions 表 (只新增)
type sqlTransaction struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	RefID     string          `gorm:"column:ref_id;type:char(36);index;not null"`
	AccountID int64           `gorm:"column:account_id;index;not null"`
	Timestamp time.Time       `gorm:"column:timestamp;not null"`
	Type      string          `gorm:"column:type;size:16;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(19,4);not null"`
	Remark    string          `gorm:"column:remark;size:255"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func (row *sqlTransaction) toDomain() (domain.TransactionRecord, error) {
	refID, err := uuid.Parse(row.RefID)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("transaction %d ref_id: %w", row.ID, err)
	}
	return domain.TransactionRecord{
		ID:        row.ID,
		RefID:     refID,
		AccountID: row.AccountID,
		Timestamp: row.Timestamp.UTC(),
		Type:      domain.TransactionType(row.Type),
		Amount:    row.Amount,
		Remark:    row.Remark,
	}, nil
}

// MySQLLedger 以 GORM 實作的 Ledger，帳戶 row 使用 SELECT ... FOR UPDATE 鎖定
type MySQLLedger struct {
	db          *gorm.DB
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Option 設定 MySQLLedger
type Option func(*MySQLLedger)

// WithLockTimeout 設定一個 unit of work (含等待 row lock) 的最長時間
func WithLockTimeout(d time.Duration) Option {
	return func(l *MySQLLedger) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *MySQLLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock 替換交易時間來源 (測試用)
func WithClock(now func() time.Time) Option {
	return func(l *MySQLLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewMySQLLedger 建立 MySQLLedger
//
// 參數:
//
//	db: GORM DB (通常來自 pkg/mysql.Client.DB())
//	opts: 選項
func NewMySQLLedger(db *gorm.DB, opts ...Option) *MySQLLedger {
	l := &MySQLLedger{
		db:          db,
		lockTimeout: defaultLockTimeout,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Migrate 建立 accounts / transactions 表
func (l *MySQLLedger) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{}); err != nil {
		return domain.NewStoreError("migrate", err)
	}
	return nil
}

// PostTransaction 在一個 DB transaction 內完成: 依 ID 由小到大鎖定帳戶 -> 檢查 ref_id -> 套用 -> 更新餘額 -> 寫交易紀錄
func (l *MySQLLedger) PostTransaction(ctx context.Context, op *domain.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.RefID == uuid.Nil {
		cp := *op
		cp.RefID = uuid.New()
		op = &cp
	}

	ctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	replayed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockIDs := op.GetLockIDs()
		accounts := make(map[int64]*domain.Account, len(lockIDs))
		for _, id := range lockIDs {
			var row sqlAccount
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("account_id = ?", id).
				Take(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 交給 op.Apply 回傳 ErrAccountNotFound
				continue
			}
			if err != nil {
				return err
			}
			acc, err := row.toDomain()
			if err != nil {
				return err
			}
			accounts[id] = acc
		}

		// 先檢查是否已有這筆交易記錄
		var count int64
		if err := tx.Model(&sqlTransaction{}).Where("ref_id = ?", op.RefID.String()).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			replayed = true
			return nil
		}

		at := l.now()
		records, err := op.Apply(accounts, at)
		if err != nil {
			return err
		}

		// 更新資料庫
		for _, id := range lockIDs {
			if err := tx.Model(&sqlAccount{}).
				Where("account_id = ?", id).
				Update("balance", accounts[id].Balance).Error; err != nil {
				return err
			}
		}
		rows := make([]sqlTransaction, 0, len(records))
		for _, rec := range records {
			rows = append(rows, sqlTransaction{
				RefID:     rec.RefID.String(),
				AccountID: rec.AccountID,
				Timestamp: rec.Timestamp,
				Type:      string(rec.Type),
				Amount:    rec.Amount,
				Remark:    rec.Remark,
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return l.classify(ctx, "post transaction", err)
	}

	if replayed {
		l.logger.Info("duplicate ref_id ignored", zap.Stringer("ref_id", op.RefID))
	} else {
		l.logger.Debug("transaction posted",
			zap.Stringer("ref_id", op.RefID),
			zap.Stringer("type", op.Type),
			zap.Stringer("amount", op.Amount))
	}
	return nil
}

// FindAccount 讀取帳戶 (不鎖定)
func (l *MySQLLedger) FindAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var row sqlAccount
	err := l.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, l.classify(ctx, "find account", err)
	}
	acc, err := row.toDomain()
	if err != nil {
		return nil, domain.NewStoreError("find account", err)
	}
	return acc, nil
}

// ListTransactions 列出帳戶交易紀錄，依時間新到舊 (同時間依 id 新到舊)
func (l *MySQLLedger) ListTransactions(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	var rows []sqlTransaction
	err := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, l.classify(ctx, "list transactions", err)
	}
	records := make([]domain.TransactionRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, domain.NewStoreError("list transactions", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// CreateAccount 開戶
func (l *MySQLLedger) CreateAccount(ctx context.Context, account *domain.Account, pinHash string) error {
	if err := account.Validate(); err != nil {
		return err
	}
	row := sqlAccount{
		AccountID: account.ID,
		OwnerName: account.OwnerName,
		Balance:   account.Balance,
		Type:      string(account.Kind),
	}
	if pinHash != "" {
		row.PINHash = &pinHash
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sqlAccount{}).Where("account_id = ?", account.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: id %d", domain.ErrAccountAlreadyExists, account.ID)
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return l.classify(ctx, "create account", err)
	}
	l.logger.Info("account created", zap.Int64("account_id", account.ID), zap.String("type", string(account.Kind)))
	return nil
}

// GetPINHash 取得 PIN hash
func (l *MySQLLedger) GetPINHash(ctx context.Context, accountID int64) (string, error) {
	var row sqlAccount
	err := l.db.WithContext(ctx).Select("account_id", "pin_hash").Where("account_id = ?", accountID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: id %d", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return "", l.classify(ctx, "get pin hash", err)
	}
	if row.PINHash == nil || *row.PINHash == "" {
		return "", fmt.Errorf("%w: id %d", domain.ErrPINNotSet, accountID)
	}
	return *row.PINHash, nil
}

// classify 將 MySQL / GORM 錯誤轉成 domain 錯誤
func (l *MySQLLedger) classify(ctx context.Context, op string, err error) error {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrLockTimeout, err)
		case errDuplicateEntry:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrAccountAlreadyExists, err)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrAccountAlreadyExists, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		// driver 回傳的可能是 bad connection 之類的錯誤
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return domain.NewStoreError(op, err)
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
