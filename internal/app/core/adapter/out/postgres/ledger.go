package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
)

const defaultLockTimeout = 5 * time.Second

// Postgres SQLSTATE
const (
	codeLockNotAvailable = "55P03"
	codeDeadlockDetected = "40P01"
	codeQueryCanceled    = "57014"
	codeUniqueViolation  = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id BIGINT PRIMARY KEY,
	owner_name VARCHAR(128) NOT NULL,
	balance NUMERIC(19,4) NOT NULL,
	type VARCHAR(16) NOT NULL,
	pin_hash VARCHAR(255),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	ref_id UUID NOT NULL,
	account_id BIGINT NOT NULL,
	"timestamp" TIMESTAMPTZ NOT NULL,
	type VARCHAR(16) NOT NULL,
	amount NUMERIC(19,4) NOT NULL,
	remark VARCHAR(255) NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id, "timestamp" DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_ref_id ON transactions (ref_id);`

// PostgresLedger 以 database/sql + lib/pq 實作的 Ledger
type PostgresLedger struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*PostgresLedger)

// WithLockTimeout 同時設定 unit of work 的 context timeout 與 SET LOCAL lock_timeout
func WithLockTimeout(d time.Duration) Option {
	return func(l *PostgresLedger) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *PostgresLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewPostgresLedger(db *sql.DB, opts ...Option) *PostgresLedger {
	l := &PostgresLedger{
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

// Migrate 建立資料表 (可重複執行)
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return l.classify("migrate", err)
	}
	return nil
}

// PostTransaction 在同一個 DB transaction 內依序鎖定帳戶 (FOR UPDATE，ID 由小到大)、套用交易並寫入紀錄
func (l *PostgresLedger) PostTransaction(ctx context.Context, op *domain.Operation) (err error) {
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

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return l.classify("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())); err != nil {
		return l.classify("set lock_timeout", err)
	}

	const lockQuery = `
SELECT account_id, owner_name, balance, type
FROM accounts
WHERE account_id = $1
FOR UPDATE`

	lockIDs := op.GetLockIDs()
	accounts := make(map[int64]*domain.Account, len(lockIDs))
	for _, id := range lockIDs {
		var (
			acc  domain.Account
			kind string
		)
		scanErr := tx.QueryRowContext(ctx, lockQuery, id).Scan(&acc.ID, &acc.OwnerName, &acc.Balance, &kind)
		if errors.Is(scanErr, sql.ErrNoRows) {
			continue
		}
		if scanErr != nil {
			err = scanErr
			return l.classify("lock account", err)
		}
		if acc.Kind, err = domain.ParseAccountKind(kind); err != nil {
			return domain.NewStoreError("lock account", err)
		}
		accounts[id] = &acc
	}

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE ref_id = $1)`, op.RefID).Scan(&exists); err != nil {
		return l.classify("check ref_id", err)
	}
	if exists {
		l.logger.Info("duplicate ref_id ignored", zap.Stringer("ref_id", op.RefID))
		return l.commit(tx)
	}

	records, err := op.Apply(accounts, l.now())
	if err != nil {
		return err
	}

	for _, id := range lockIDs {
		if _, err = tx.ExecContext(ctx,
			`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE account_id = $2`,
			accounts[id].Balance, id); err != nil {
			return l.classify("update balance", err)
		}
	}

	const insertRecord = `
INSERT INTO transactions (ref_id, account_id, "timestamp", type, amount, remark)
VALUES ($1, $2, $3, $4, $5, $6)`
	for _, rec := range records {
		if _, err = tx.ExecContext(ctx, insertRecord,
			rec.RefID, rec.AccountID, rec.Timestamp, string(rec.Type), rec.Amount, rec.Remark); err != nil {
			return l.classify("insert transaction", err)
		}
	}

	if err = l.commit(tx); err != nil {
		return err
	}
	l.logger.Debug("transaction posted",
		zap.Stringer("ref_id", op.RefID),
		zap.Stringer("type", op.Type),
		zap.Stringer("amount", op.Amount))
	return nil
}

func (l *PostgresLedger) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return l.classify("commit", err)
	}
	return nil
}

func (l *PostgresLedger) FindAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	const query = `
SELECT account_id, owner_name, balance, type
FROM accounts
WHERE account_id = $1`

	var (
		acc  domain.Account
		kind string
	)
	if err := l.db.QueryRowContext(ctx, query, accountID).Scan(&acc.ID, &acc.OwnerName, &acc.Balance, &kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", domain.ErrAccountNotFound, accountID)
		}
		return nil, l.classify("find account", err)
	}
	kindValue, err := domain.ParseAccountKind(kind)
	if err != nil {
		return nil, domain.NewStoreError("find account", err)
	}
	acc.Kind = kindValue
	return &acc, nil
}

// ListTransactions 新的在前
func (l *PostgresLedger) ListTransactions(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	const query = `
SELECT id, ref_id, account_id, "timestamp", type, amount, remark
FROM transactions
WHERE account_id = $1
ORDER BY "timestamp" DESC, id DESC`

	rows, err := l.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, l.classify("list transactions", err)
	}
	defer rows.Close()

	records := make([]domain.TransactionRecord, 0)
	for rows.Next() {
		var (
			rec     domain.TransactionRecord
			recType string
		)
		if err := rows.Scan(&rec.ID, &rec.RefID, &rec.AccountID, &rec.Timestamp, &recType, &rec.Amount, &rec.Remark); err != nil {
			return nil, l.classify("scan transaction", err)
		}
		rec.Type = domain.TransactionType(recType)
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, l.classify("list transactions", err)
	}
	return records, nil
}

func (l *PostgresLedger) CreateAccount(ctx context.Context, account *domain.Account, pinHash string) error {
	if err := account.Validate(); err != nil {
		return err
	}
	const query = `
INSERT INTO accounts (account_id, owner_name, balance, type, pin_hash)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id) DO NOTHING`

	hash := sql.NullString{String: pinHash, Valid: pinHash != ""}
	result, err := l.db.ExecContext(ctx, query, account.ID, account.OwnerName, account.Balance, string(account.Kind), hash)
	if err != nil {
		return l.classify("create account", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return l.classify("create account", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrAccountAlreadyExists, account.ID)
	}
	l.logger.Info("account created", zap.Int64("account_id", account.ID), zap.String("type", string(account.Kind)))
	return nil
}

func (l *PostgresLedger) GetPINHash(ctx context.Context, accountID int64) (string, error) {
	var hash sql.NullString
	err := l.db.QueryRowContext(ctx, `SELECT pin_hash FROM accounts WHERE account_id = $1`, accountID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: id %d", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return "", l.classify("get pin hash", err)
	}
	if !hash.Valid || hash.String == "" {
		return "", fmt.Errorf("%w: id %d", domain.ErrPINNotSet, accountID)
	}
	return hash.String, nil
}

// classify 將 pq 錯誤轉成 domain 錯誤
func (l *PostgresLedger) classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeQueryCanceled:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrLockTimeout, err)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrAccountAlreadyExists, err)
		}
	}
	return domain.NewStoreError(op, err)
}

var _ usecase.Ledger = (*PostgresLedger)(nil)
