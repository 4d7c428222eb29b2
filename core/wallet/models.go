package wallet

import (
	"math"
	"time"
)

// Token pricing. Students buy tokens at 10 cents apiece; teachers are
// paid out at a fixed 4 cents apiece. The asymmetry is the platform fee.
const (
	StudentTokenRateUSD = 0.10
	TeacherTokenRateUSD = 0.04
)

// Token operations
const (
	TokenOpAdd      = "add"
	TokenOpSubtract = "subtract"
	TokenOpSet      = "set"
)

// Transaction types
const (
	TxnTypeDeposit    = "deposit"
	TxnTypePayment    = "payment"
	TxnTypeWithdrawal = "withdrawal"
	TxnTypeRefund     = "refund"
)

// Transaction statuses
const (
	TxnStatusPending   = "pending"
	TxnStatusCompleted = "completed"
	TxnStatusFailed    = "failed"
)

// Withdrawal request statuses
const (
	WithdrawalPending   = "pending"
	WithdrawalCompleted = "completed"
	WithdrawalFailed    = "failed"
)

// TeacherTokensFor converts a USD earning into teacher tokens,
// rounding down.
func TeacherTokensFor(earningsUSD float64) int {
	return int(math.Floor(earningsUSD / TeacherTokenRateUSD))
}

// TokenRateFor returns the per-token USD rate for a user role.
func TokenRateFor(role string) float64 {
	if role == "student" {
		return StudentTokenRateUSD
	}
	return TeacherTokenRateUSD
}

// Wallet holds a user's token balance. One row per user; mutated only
// through additive/subtractive ledger operations.
type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	Tokens    int       `json:"tokens"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Transaction is an append-only audit record explaining wallet mutations.
// ReferenceID correlates to the external payment-provider object or the
// internal session/withdrawal id and is the idempotency handle.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        string            `json:"type"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	ReferenceID string            `json:"reference_id"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"` // UTC
}

type NewTransaction struct {
	UserID      string            `json:"user_id" validate:"required"`
	Type        string            `json:"type" validate:"required,oneof=deposit payment withdrawal refund"`
	Amount      float64           `json:"amount" validate:"required"`
	Currency    string            `json:"currency" validate:"omitempty,currency"`
	Description string            `json:"description"`
	Status      string            `json:"status" validate:"omitempty,oneof=pending completed failed"`
	ReferenceID string            `json:"reference_id"`
	Metadata    map[string]string `json:"metadata"`
}

// WithdrawalRequest tracks a teacher payout through the payment provider.
type WithdrawalRequest struct {
	ID         string    `json:"id"`
	TeacherID  string    `json:"teacher_id"`
	AmountUSD  float64   `json:"amount_usd"`
	Tokens     int       `json:"tokens"`
	BankLast4  string    `json:"bank_last4"`
	Status     string    `json:"status"`
	TransferID string    `json:"transfer_id"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// SessionPayment carries the amounts settled when a class session completes.
type SessionPayment struct {
	SessionID          string
	StudentID          string
	TeacherID          string
	Tokens             int
	SessionCostUSD     float64
	TeacherEarningsUSD float64
}
