package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound           = errors.New("wallet not found")
	ErrTxnNotFound        = errors.New("transaction not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrInsufficientTokens = errors.New("insufficient token balance")
	ErrUnknownTokenOp     = errors.New("unknown token operation")
)

type (
	Repository interface {
		GetWallet(ctx context.Context, userID string, exec ...core.DBExecutor) (Wallet, error)
		CreateWallet(ctx context.Context, w Wallet, exec ...core.DBExecutor) (Wallet, error)
		// AdjustTokens applies `tokens = tokens + delta` as a single atomic
		// statement; a negative delta that would drive the balance below zero
		// returns ErrInsufficientTokens and leaves the row unchanged.
		AdjustTokens(ctx context.Context, userID string, delta int, exec ...core.DBExecutor) (Wallet, error)
		SetTokens(ctx context.Context, userID string, tokens int, exec ...core.DBExecutor) (Wallet, error)

		CreateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransactionByReference(ctx context.Context, refID string, exec ...core.DBExecutor) (Transaction, error)
		QueryTransactions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Transaction, error)
		UpdateTransactionStatus(ctx context.Context, id, status string, exec ...core.DBExecutor) error

		CreateWithdrawalRequest(ctx context.Context, req WithdrawalRequest, exec ...core.DBExecutor) (WithdrawalRequest, error)
		GetWithdrawalRequest(ctx context.Context, id string, exec ...core.DBExecutor) (WithdrawalRequest, error)
		// OldestPendingWithdrawal returns the oldest pending request for a teacher.
		OldestPendingWithdrawal(ctx context.Context, teacherID string, exec ...core.DBExecutor) (WithdrawalRequest, error)
		UpdateWithdrawalRequest(ctx context.Context, req WithdrawalRequest, exec ...core.DBExecutor) (WithdrawalRequest, error)
	}

	Service interface {
		GetOrCreateWallet(ctx context.Context, userID string, exec ...core.DBExecutor) (Wallet, error)
		AdjustTokens(ctx context.Context, userID string, amount int, op string, exec ...core.DBExecutor) (Wallet, error)
		CreateTransaction(ctx context.Context, nt NewTransaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransactionByReference(ctx context.Context, refID string) (Transaction, error)
		QueryTransactions(ctx context.Context, userID string) ([]Transaction, error)
		MarkTransactionFailed(ctx context.Context, refID string, exec ...core.DBExecutor) error
		MarkTransactionCompleted(ctx context.Context, refID string, exec ...core.DBExecutor) error
		ProcessSessionPayment(ctx context.Context, p SessionPayment, exec ...core.DBExecutor) error

		CreateWithdrawalRequest(ctx context.Context, req WithdrawalRequest, exec ...core.DBExecutor) (WithdrawalRequest, error)
		GetWithdrawalRequest(ctx context.Context, id string) (WithdrawalRequest, error)
		OldestPendingWithdrawal(ctx context.Context, teacherID string) (WithdrawalRequest, error)
		UpdateWithdrawalRequest(ctx context.Context, req WithdrawalRequest, exec ...core.DBExecutor) (WithdrawalRequest, error)
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) *service {
	return &service{db: db, repo: repo}
}

func (svc *service) GetOrCreateWallet(ctx context.Context, userID string, exec ...core.DBExecutor) (Wallet, error) {
	w, err := svc.repo.GetWallet(ctx, userID, exec...)
	if err == nil {
		return w, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Wallet{}, err
	}
	return svc.repo.CreateWallet(ctx, Wallet{
		UserID:    userID,
		Currency:  "usd",
		UpdatedAt: time.Now().UTC(),
	}, exec...)
}

func (svc *service) AdjustTokens(ctx context.Context, userID string, amount int, op string, exec ...core.DBExecutor) (Wallet, error) {
	if _, err := svc.GetOrCreateWallet(ctx, userID, exec...); err != nil {
		return Wallet{}, err
	}
	switch op {
	case TokenOpAdd:
		return svc.repo.AdjustTokens(ctx, userID, amount, exec...)
	case TokenOpSubtract:
		return svc.repo.AdjustTokens(ctx, userID, -amount, exec...)
	case TokenOpSet:
		return svc.repo.SetTokens(ctx, userID, amount, exec...)
	}
	return Wallet{}, ErrUnknownTokenOp
}

func (svc *service) CreateTransaction(ctx context.Context, nt NewTransaction, exec ...core.DBExecutor) (Transaction, error) {
	status := nt.Status
	if status == "" {
		status = TxnStatusCompleted
	}
	currency := nt.Currency
	if currency == "" {
		currency = "usd"
	}
	txn := Transaction{
		UserID:      nt.UserID,
		Type:        nt.Type,
		Amount:      nt.Amount,
		Currency:    core.CleanString(currency, true /* lower */),
		Description: nt.Description,
		Status:      status,
		ReferenceID: nt.ReferenceID,
		Metadata:    nt.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateTransaction(ctx, txn, exec...)
}

func (svc *service) GetTransactionByReference(ctx context.Context, refID string) (Transaction, error) {
	return svc.repo.GetTransactionByReference(ctx, refID)
}

func (svc *service) QueryTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	return svc.repo.QueryTransactions(ctx, userID)
}

// MarkTransactionFailed flags the transaction matching refID as failed.
// A missing transaction is a silent no-op: failure events may arrive for
// intents that were never recorded locally.
func (svc *service) MarkTransactionFailed(ctx context.Context, refID string, exec ...core.DBExecutor) error {
	txn, err := svc.repo.GetTransactionByReference(ctx, refID, exec...)
	if err != nil {
		if errors.Cause(err) == ErrTxnNotFound {
			return nil
		}
		return err
	}
	return svc.repo.UpdateTransactionStatus(ctx, txn.ID, TxnStatusFailed, exec...)
}

// MarkTransactionCompleted flags the transaction matching refID as
// completed; missing transactions are a silent no-op.
func (svc *service) MarkTransactionCompleted(ctx context.Context, refID string, exec ...core.DBExecutor) error {
	txn, err := svc.repo.GetTransactionByReference(ctx, refID, exec...)
	if err != nil {
		if errors.Cause(err) == ErrTxnNotFound {
			return nil
		}
		return err
	}
	return svc.repo.UpdateTransactionStatus(ctx, txn.ID, TxnStatusCompleted, exec...)
}

// ProcessSessionPayment debits the student, credits the teacher and writes
// both ledger rows. The whole sequence runs in a single transaction; when an
// exec is supplied the caller owns the transaction instead.
func (svc *service) ProcessSessionPayment(ctx context.Context, p SessionPayment, exec ...core.DBExecutor) error {
	if len(exec) > 0 {
		return svc.processSessionPayment(ctx, p, exec[0])
	}
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		return svc.processSessionPayment(ctx, p, tx)
	})
}

func (svc *service) processSessionPayment(ctx context.Context, p SessionPayment, exec core.DBExecutor) error {
	if _, err := svc.AdjustTokens(ctx, p.StudentID, p.Tokens, TokenOpSubtract, exec); err != nil {
		return errors.Wrap(err, "debiting student tokens")
	}

	teacherTokens := TeacherTokensFor(p.TeacherEarningsUSD)
	if _, err := svc.AdjustTokens(ctx, p.TeacherID, teacherTokens, TokenOpAdd, exec); err != nil {
		return errors.Wrap(err, "crediting teacher tokens")
	}

	meta := map[string]string{"session_id": p.SessionID}
	if _, err := svc.CreateTransaction(ctx, NewTransaction{
		UserID:      p.StudentID,
		Type:        TxnTypePayment,
		Amount:      -p.SessionCostUSD,
		Description: fmt.Sprintf("Session payment (%d tokens)", p.Tokens),
		ReferenceID: p.SessionID,
		Metadata:    meta,
	}, exec); err != nil {
		return errors.Wrap(err, "recording student transaction")
	}
	if _, err := svc.CreateTransaction(ctx, NewTransaction{
		UserID:      p.TeacherID,
		Type:        TxnTypePayment,
		Amount:      p.TeacherEarningsUSD,
		Description: fmt.Sprintf("Session earnings (%d tokens)", teacherTokens),
		ReferenceID: p.SessionID,
		Metadata:    meta,
	}, exec); err != nil {
		return errors.Wrap(err, "recording teacher transaction")
	}
	return nil
}

func (svc *service) CreateWithdrawalRequest(ctx context.Context, req WithdrawalRequest, exec ...core.DBExecutor) (WithdrawalRequest, error) {
	now := time.Now().UTC()
	req.Status = WithdrawalPending
	req.CreatedAt = now
	req.UpdatedAt = now
	return svc.repo.CreateWithdrawalRequest(ctx, req, exec...)
}

func (svc *service) GetWithdrawalRequest(ctx context.Context, id string) (WithdrawalRequest, error) {
	return svc.repo.GetWithdrawalRequest(ctx, id)
}

func (svc *service) OldestPendingWithdrawal(ctx context.Context, teacherID string) (WithdrawalRequest, error) {
	return svc.repo.OldestPendingWithdrawal(ctx, teacherID)
}

func (svc *service) UpdateWithdrawalRequest(ctx context.Context, req WithdrawalRequest, exec ...core.DBExecutor) (WithdrawalRequest, error) {
	req.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateWithdrawalRequest(ctx, req, exec...)
}
