package wallet_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/wallet"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

func setup() wallet.Service {
	db := inmemdb.Open()
	return wallet.NewService(db, inmemdb.NewWalletRepository(db))
}

func TestTeacherTokensFor(t *testing.T) {
	tests := []struct {
		earningsUSD float64
		want        int
	}{
		{earningsUSD: 0, want: 0},
		{earningsUSD: 0.04, want: 1},
		{earningsUSD: 1, want: 25},
		{earningsUSD: 0.05, want: 1}, // partial tokens round down
		{earningsUSD: 20, want: 500},
	}
	for _, tt := range tests {
		if got := wallet.TeacherTokensFor(tt.earningsUSD); got != tt.want {
			t.Errorf("TeacherTokensFor(%v) = %d; want %d", tt.earningsUSD, got, tt.want)
		}
	}
}

func Test_service_GetOrCreateWallet(t *testing.T) {
	svc := setup()
	ctx := context.Background()

	w, err := svc.GetOrCreateWallet(ctx, "usr1")
	if err != nil {
		t.Fatalf("GetOrCreateWallet() failed: %v", err)
	}
	if w.Tokens != 0 || w.Currency != "usd" {
		t.Errorf("new wallet = %+v; want empty usd wallet", w)
	}

	// lazy creation is idempotent
	if _, err = svc.AdjustTokens(ctx, "usr1", 5, wallet.TokenOpAdd); err != nil {
		t.Fatalf("AdjustTokens() failed: %v", err)
	}
	if w, err = svc.GetOrCreateWallet(ctx, "usr1"); err != nil {
		t.Fatalf("GetOrCreateWallet() failed: %v", err)
	}
	if w.Tokens != 5 {
		t.Errorf("Tokens = %d; want 5", w.Tokens)
	}
}

func Test_service_AdjustTokens(t *testing.T) {
	svc := setup()
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  int
		op      string
		want    int
		wantErr error
	}{
		{name: "add", amount: 10, op: wallet.TokenOpAdd, want: 10},
		{name: "subtract", amount: 4, op: wallet.TokenOpSubtract, want: 6},
		{name: "set", amount: 50, op: wallet.TokenOpSet, want: 50},
		{name: "overdraft rejected", amount: 51, op: wallet.TokenOpSubtract, wantErr: wallet.ErrInsufficientTokens},
		{name: "unknown op", amount: 1, op: "multiply", wantErr: wallet.ErrUnknownTokenOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := svc.AdjustTokens(ctx, "usr1", tt.amount, tt.op)
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Fatalf("AdjustTokens() err = %v; want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AdjustTokens() failed: %v", err)
			}
			if w.Tokens != tt.want {
				t.Errorf("Tokens = %d; want %d", w.Tokens, tt.want)
			}
		})
	}

	// a rejected debit leaves the balance untouched
	w, err := svc.GetOrCreateWallet(ctx, "usr1")
	if err != nil {
		t.Fatalf("GetOrCreateWallet() failed: %v", err)
	}
	if w.Tokens != 50 {
		t.Errorf("Tokens = %d; want 50", w.Tokens)
	}
}

func Test_service_CreateTransaction_defaults(t *testing.T) {
	svc := setup()
	ctx := context.Background()

	txn, err := svc.CreateTransaction(ctx, wallet.NewTransaction{
		UserID:      "usr1",
		Type:        wallet.TxnTypeDeposit,
		Amount:      5,
		Description: "Token purchase",
		ReferenceID: "pi_1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction() failed: %v", err)
	}
	if txn.Status != wallet.TxnStatusCompleted {
		t.Errorf("Status = %q; want %q", txn.Status, wallet.TxnStatusCompleted)
	}
	if txn.Currency != "usd" {
		t.Errorf("Currency = %q; want %q", txn.Currency, "usd")
	}
	if txn.ID == "" {
		t.Error("ID not set")
	}

	got, err := svc.GetTransactionByReference(ctx, "pi_1")
	if err != nil {
		t.Fatalf("GetTransactionByReference() failed: %v", err)
	}
	if got.ID != txn.ID {
		t.Errorf("ID = %q; want %q", got.ID, txn.ID)
	}
}

func Test_service_MarkTransaction(t *testing.T) {
	svc := setup()
	ctx := context.Background()

	// events may reference intents never recorded locally
	if err := svc.MarkTransactionFailed(ctx, "pi_unknown"); err != nil {
		t.Errorf("MarkTransactionFailed() on missing txn = %v; want nil", err)
	}
	if err := svc.MarkTransactionCompleted(ctx, "pi_unknown"); err != nil {
		t.Errorf("MarkTransactionCompleted() on missing txn = %v; want nil", err)
	}

	if _, err := svc.CreateTransaction(ctx, wallet.NewTransaction{
		UserID:      "usr1",
		Type:        wallet.TxnTypeDeposit,
		Amount:      5,
		Status:      wallet.TxnStatusPending,
		ReferenceID: "pi_1",
	}); err != nil {
		t.Fatalf("CreateTransaction() failed: %v", err)
	}

	if err := svc.MarkTransactionFailed(ctx, "pi_1"); err != nil {
		t.Fatalf("MarkTransactionFailed() failed: %v", err)
	}
	txn, err := svc.GetTransactionByReference(ctx, "pi_1")
	if err != nil {
		t.Fatalf("GetTransactionByReference() failed: %v", err)
	}
	if txn.Status != wallet.TxnStatusFailed {
		t.Errorf("Status = %q; want %q", txn.Status, wallet.TxnStatusFailed)
	}
}

func Test_service_ProcessSessionPayment(t *testing.T) {
	svc := setup()
	ctx := context.Background()

	if _, err := svc.AdjustTokens(ctx, "student", 100, wallet.TokenOpAdd); err != nil {
		t.Fatalf("AdjustTokens() failed: %v", err)
	}

	payment := func(sessionID string) wallet.SessionPayment {
		return wallet.SessionPayment{
			SessionID:          sessionID,
			StudentID:          "student",
			TeacherID:          "teacher",
			Tokens:             10,
			SessionCostUSD:     1,
			TeacherEarningsUSD: 20,
		}
	}

	// settlements of distinct sessions may race
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{"ses1", "ses2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- svc.ProcessSessionPayment(ctx, payment(id))
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ProcessSessionPayment() failed: %v", err)
		}
	}

	student, err := svc.GetOrCreateWallet(ctx, "student")
	if err != nil {
		t.Fatalf("GetOrCreateWallet() failed: %v", err)
	}
	if student.Tokens != 80 {
		t.Errorf("student tokens = %d; want 80", student.Tokens)
	}
	teacher, err := svc.GetOrCreateWallet(ctx, "teacher")
	if err != nil {
		t.Fatalf("GetOrCreateWallet() failed: %v", err)
	}
	if want := 2 * wallet.TeacherTokensFor(20); teacher.Tokens != want {
		t.Errorf("teacher tokens = %d; want %d", teacher.Tokens, want)
	}

	txns, err := svc.QueryTransactions(ctx, "student")
	if err != nil {
		t.Fatalf("QueryTransactions() failed: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("student transactions = %d; want 2", len(txns))
	}
}

func Test_service_Withdrawals(t *testing.T) {
	svc := setup()
	ctx := context.Background()

	if _, err := svc.GetWithdrawalRequest(ctx, "nope"); errors.Cause(err) != wallet.ErrWithdrawalNotFound {
		t.Errorf("GetWithdrawalRequest() err = %v; want %v", errors.Cause(err), wallet.ErrWithdrawalNotFound)
	}

	first, err := svc.CreateWithdrawalRequest(ctx, wallet.WithdrawalRequest{
		TeacherID: "teacher",
		AmountUSD: 20,
		Tokens:    500,
		BankLast4: "6789",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawalRequest() failed: %v", err)
	}
	if first.Status != wallet.WithdrawalPending {
		t.Errorf("Status = %q; want %q", first.Status, wallet.WithdrawalPending)
	}

	second, err := svc.CreateWithdrawalRequest(ctx, wallet.WithdrawalRequest{
		TeacherID: "teacher",
		AmountUSD: 10,
		Tokens:    250,
		BankLast4: "6789",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawalRequest() failed: %v", err)
	}

	oldest, err := svc.OldestPendingWithdrawal(ctx, "teacher")
	if err != nil {
		t.Fatalf("OldestPendingWithdrawal() failed: %v", err)
	}
	if oldest.ID != first.ID {
		t.Errorf("oldest pending = %q; want %q", oldest.ID, first.ID)
	}

	first.Status = wallet.WithdrawalCompleted
	first.TransferID = "tr_1"
	if _, err = svc.UpdateWithdrawalRequest(ctx, first); err != nil {
		t.Fatalf("UpdateWithdrawalRequest() failed: %v", err)
	}
	if oldest, err = svc.OldestPendingWithdrawal(ctx, "teacher"); err != nil {
		t.Fatalf("OldestPendingWithdrawal() failed: %v", err)
	}
	if oldest.ID != second.ID {
		t.Errorf("oldest pending = %q; want %q", oldest.ID, second.ID)
	}
}
