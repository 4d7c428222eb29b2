package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/wallet"
	"github.com/trezcool/darasa/storage/database"
)

// metadata maps to a JSONB column.
type metadata map[string]string

func (m metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("scanning metadata: unexpected type %T", src)
	}
	return json.Unmarshal(b, m)
}

type walletRow struct {
	UserID    string    `db:"user_id"`
	Balance   float64   `db:"balance"`
	Tokens    int       `db:"tokens"`
	Currency  string    `db:"currency"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r walletRow) wallet() wallet.Wallet {
	return wallet.Wallet{
		UserID:    r.UserID,
		Balance:   r.Balance,
		Tokens:    r.Tokens,
		Currency:  r.Currency,
		UpdatedAt: r.UpdatedAt,
	}
}

type transactionRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Type        string    `db:"type"`
	Amount      float64   `db:"amount"`
	Currency    string    `db:"currency"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	ReferenceID string    `db:"reference_id"`
	Metadata    metadata  `db:"metadata"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r transactionRow) transaction() wallet.Transaction {
	return wallet.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        r.Type,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
		Status:      r.Status,
		ReferenceID: r.ReferenceID,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
	}
}

type withdrawalRow struct {
	ID         string    `db:"id"`
	TeacherID  string    `db:"teacher_id"`
	AmountUSD  float64   `db:"amount_usd"`
	Tokens     int       `db:"tokens"`
	BankLast4  string    `db:"bank_last4"`
	Status     string    `db:"status"`
	TransferID string    `db:"transfer_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r withdrawalRow) withdrawal() wallet.WithdrawalRequest {
	return wallet.WithdrawalRequest{
		ID:         r.ID,
		TeacherID:  r.TeacherID,
		AmountUSD:  r.AmountUSD,
		Tokens:     r.Tokens,
		BankLast4:  r.BankLast4,
		Status:     r.Status,
		TransferID: r.TransferID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

const walletColumns = "user_id, balance, tokens, currency, updated_at"
const transactionColumns = "id, user_id, type, amount, currency, description, status, reference_id, metadata, created_at"
const withdrawalColumns = "id, teacher_id, amount_usd, tokens, bank_last4, status, transfer_id, created_at, updated_at"

type walletRepository struct {
	db *database.DB
}

var _ wallet.Repository = (*walletRepository)(nil)

func NewWalletRepository(db *database.DB) *walletRepository {
	return &walletRepository{db: db}
}

func (repo walletRepository) GetWallet(ctx context.Context, userID string, exec ...core.DBExecutor) (wallet.Wallet, error) {
	query := "SELECT " + walletColumns + " FROM wallets WHERE user_id = $1"

	var row walletRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, userID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return wallet.Wallet{}, wallet.ErrNotFound
		}
		return wallet.Wallet{}, errors.Wrap(err, "getting wallet")
	}
	return row.wallet(), nil
}

func (repo walletRepository) CreateWallet(ctx context.Context, w wallet.Wallet, exec ...core.DBExecutor) (wallet.Wallet, error) {
	// concurrent lazy creations race; the existing row wins
	query := `
		INSERT INTO wallets (user_id, balance, tokens, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + walletColumns

	var row walletRow
	err := ext(repo.db, exec).QueryRowxContext(ctx, query, w.UserID, w.Balance, w.Tokens, w.Currency, w.UpdatedAt.UTC()).StructScan(&row)
	if err != nil {
		return wallet.Wallet{}, errors.Wrap(err, "creating wallet")
	}
	return row.wallet(), nil
}

func (repo walletRepository) AdjustTokens(ctx context.Context, userID string, delta int, exec ...core.DBExecutor) (wallet.Wallet, error) {
	query := `
		UPDATE wallets
		SET tokens = tokens + $2, updated_at = now()
		WHERE user_id = $1 AND tokens + $2 >= 0
		RETURNING ` + walletColumns

	var row walletRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, userID, delta).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			// not found or guard tripped; disambiguate
			if _, gerr := repo.GetWallet(ctx, userID, exec...); gerr != nil {
				return wallet.Wallet{}, gerr
			}
			return wallet.Wallet{}, wallet.ErrInsufficientTokens
		}
		return wallet.Wallet{}, errors.Wrap(err, "adjusting tokens")
	}
	return row.wallet(), nil
}

func (repo walletRepository) SetTokens(ctx context.Context, userID string, tokens int, exec ...core.DBExecutor) (wallet.Wallet, error) {
	query := `
		UPDATE wallets
		SET tokens = $2, updated_at = now()
		WHERE user_id = $1
		RETURNING ` + walletColumns

	var row walletRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, userID, tokens).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return wallet.Wallet{}, wallet.ErrNotFound
		}
		return wallet.Wallet{}, errors.Wrap(err, "setting tokens")
	}
	return row.wallet(), nil
}

func (repo walletRepository) CreateTransaction(ctx context.Context, txn wallet.Transaction, exec ...core.DBExecutor) (wallet.Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, type, amount, currency, description, status, reference_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + transactionColumns

	var row transactionRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		txn.UserID, txn.Type, txn.Amount, txn.Currency, txn.Description, txn.Status,
		txn.ReferenceID, metadata(txn.Metadata), txn.CreatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "creating transaction")
	}
	return row.transaction(), nil
}

func (repo walletRepository) GetTransactionByReference(ctx context.Context, refID string, exec ...core.DBExecutor) (wallet.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE reference_id = $1 ORDER BY created_at LIMIT 1"

	var row transactionRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, refID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return wallet.Transaction{}, wallet.ErrTxnNotFound
		}
		return wallet.Transaction{}, errors.Wrap(err, "getting transaction")
	}
	return row.transaction(), nil
}

func (repo walletRepository) QueryTransactions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]wallet.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE user_id = $1 ORDER BY created_at DESC"

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	txns := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.transaction())
	}
	return txns, nil
}

func (repo walletRepository) UpdateTransactionStatus(ctx context.Context, id, status string, exec ...core.DBExecutor) error {
	res, err := ext(repo.db, exec).ExecContext(ctx, "UPDATE transactions SET status = $2 WHERE id = $1", id, status)
	if err != nil {
		return errors.Wrap(err, "updating transaction status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wallet.ErrTxnNotFound
	}
	return nil
}

func (repo walletRepository) CreateWithdrawalRequest(ctx context.Context, req wallet.WithdrawalRequest, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	query := `
		INSERT INTO withdrawal_requests (teacher_id, amount_usd, tokens, bank_last4, status, transfer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + withdrawalColumns

	var row withdrawalRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		req.TeacherID, req.AmountUSD, req.Tokens, req.BankLast4, req.Status, req.TransferID,
		req.CreatedAt.UTC(), req.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return wallet.WithdrawalRequest{}, errors.Wrap(err, "creating withdrawal request")
	}
	return row.withdrawal(), nil
}

func (repo walletRepository) GetWithdrawalRequest(ctx context.Context, id string, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	query := "SELECT " + withdrawalColumns + " FROM withdrawal_requests WHERE id = $1"

	var row withdrawalRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return wallet.WithdrawalRequest{}, wallet.ErrWithdrawalNotFound
		}
		return wallet.WithdrawalRequest{}, errors.Wrap(err, "getting withdrawal request")
	}
	return row.withdrawal(), nil
}

func (repo walletRepository) OldestPendingWithdrawal(ctx context.Context, teacherID string, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	query := "SELECT " + withdrawalColumns + " FROM withdrawal_requests " +
		"WHERE teacher_id = $1 AND status = 'pending' ORDER BY created_at LIMIT 1"

	var row withdrawalRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, teacherID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return wallet.WithdrawalRequest{}, wallet.ErrWithdrawalNotFound
		}
		return wallet.WithdrawalRequest{}, errors.Wrap(err, "getting oldest pending withdrawal")
	}
	return row.withdrawal(), nil
}

func (repo walletRepository) UpdateWithdrawalRequest(ctx context.Context, req wallet.WithdrawalRequest, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	query := `
		UPDATE withdrawal_requests
		SET status = $2, transfer_id = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + withdrawalColumns

	var row withdrawalRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, req.ID, req.Status, req.TransferID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return wallet.WithdrawalRequest{}, wallet.ErrWithdrawalNotFound
		}
		return wallet.WithdrawalRequest{}, errors.Wrap(err, "updating withdrawal request")
	}
	return row.withdrawal(), nil
}
