package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/wallet"
)

type walletRepository struct {
	db *DB
}

var _ wallet.Repository = (*walletRepository)(nil)

func NewWalletRepository(db *DB) *walletRepository {
	return &walletRepository{db: db}
}

func (repo *walletRepository) GetWallet(ctx context.Context, userID string, exec ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if w, ok := repo.db.wallets[userID]; ok {
		return *w, nil
	}
	return wallet.Wallet{}, wallet.ErrNotFound
}

func (repo *walletRepository) CreateWallet(ctx context.Context, w wallet.Wallet, exec ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if existing, ok := repo.db.wallets[w.UserID]; ok {
		return *existing, nil
	}
	repo.db.wallets[w.UserID] = &w
	return w, nil
}

func (repo *walletRepository) AdjustTokens(ctx context.Context, userID string, delta int, exec ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	w, ok := repo.db.wallets[userID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	if w.Tokens+delta < 0 {
		return wallet.Wallet{}, wallet.ErrInsufficientTokens
	}
	w.Tokens += delta
	w.UpdatedAt = time.Now().UTC()
	return *w, nil
}

func (repo *walletRepository) SetTokens(ctx context.Context, userID string, tokens int, exec ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	w, ok := repo.db.wallets[userID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	w.Tokens = tokens
	w.UpdatedAt = time.Now().UTC()
	return *w, nil
}

func (repo *walletRepository) CreateTransaction(ctx context.Context, txn wallet.Transaction, exec ...core.DBExecutor) (wallet.Transaction, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	txn.ID = uuid.New().String()
	repo.db.transactions[txn.ID] = &txn
	return txn, nil
}

func (repo *walletRepository) GetTransactionByReference(ctx context.Context, refID string, exec ...core.DBExecutor) (wallet.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, txn := range repo.db.transactions {
		if txn.ReferenceID == refID {
			return *txn, nil
		}
	}
	return wallet.Transaction{}, wallet.ErrTxnNotFound
}

func (repo *walletRepository) QueryTransactions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]wallet.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	txns := make([]wallet.Transaction, 0, len(repo.db.transactions))
	for _, txn := range repo.db.transactions {
		if userID != "" && txn.UserID != userID {
			continue
		}
		txns = append(txns, *txn)
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return txns, nil
}

func (repo *walletRepository) UpdateTransactionStatus(ctx context.Context, id, status string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	txn, ok := repo.db.transactions[id]
	if !ok {
		return wallet.ErrTxnNotFound
	}
	txn.Status = status
	return nil
}

func (repo *walletRepository) CreateWithdrawalRequest(ctx context.Context, req wallet.WithdrawalRequest, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	req.ID = uuid.New().String()
	repo.db.withdrawals[req.ID] = &req
	return req, nil
}

func (repo *walletRepository) GetWithdrawalRequest(ctx context.Context, id string, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if req, ok := repo.db.withdrawals[id]; ok {
		return *req, nil
	}
	return wallet.WithdrawalRequest{}, wallet.ErrWithdrawalNotFound
}

func (repo *walletRepository) OldestPendingWithdrawal(ctx context.Context, teacherID string, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var oldest *wallet.WithdrawalRequest
	for _, req := range repo.db.withdrawals {
		if req.TeacherID != teacherID || req.Status != wallet.WithdrawalPending {
			continue
		}
		if oldest == nil || req.CreatedAt.Before(oldest.CreatedAt) {
			oldest = req
		}
	}
	if oldest == nil {
		return wallet.WithdrawalRequest{}, wallet.ErrWithdrawalNotFound
	}
	return *oldest, nil
}

func (repo *walletRepository) UpdateWithdrawalRequest(ctx context.Context, req wallet.WithdrawalRequest, exec ...core.DBExecutor) (wallet.WithdrawalRequest, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.withdrawals[req.ID]; !ok {
		return wallet.WithdrawalRequest{}, wallet.ErrWithdrawalNotFound
	}
	req.UpdatedAt = time.Now().UTC()
	repo.db.withdrawals[req.ID] = &req
	return req, nil
}
