package billing

import "context"

// Webhook event types dispatched by the service. External event type drives
// the state machine, not internal state.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventTransferCreated  = "transfer.created"
)

// Intent metadata keys set by the front end at intent creation.
const (
	MetaUserID       = "userId"
	MetaUserRole     = "userRole"
	MetaTokens       = "tokens"
	MetaTokenPackage = "tokenPackage"
	MetaWithdrawalID = "withdrawalRequestId"
)

type (
	// PaymentIntent is the provider-neutral view of a payment intent.
	PaymentIntent struct {
		ID           string
		ClientSecret string
		Amount       int64 // smallest currency unit
		Currency     string
		Metadata     map[string]string
	}

	Customer struct {
		ID string
	}

	PaymentMethod struct {
		ID       string `json:"id"`
		Brand    string `json:"brand"`
		Last4    string `json:"last4"`
		ExpMonth uint64 `json:"exp_month"`
		ExpYear  uint64 `json:"exp_year"`
	}

	Transfer struct {
		ID          string
		Amount      int64
		Currency    string
		Destination string
		Metadata    map[string]string
	}

	// Event is a verified, parsed webhook event. Exactly one of Intent and
	// TransferObj is set depending on Type.
	Event struct {
		ID          string
		Type        string
		Intent      *PaymentIntent
		TransferObj *Transfer
	}

	BankAccount struct {
		AccountNumber     string `json:"account_number" validate:"required"`
		RoutingNumber     string `json:"routing_number" validate:"required"`
		AccountHolderName string `json:"account_holder_name" validate:"required"`
	}

	// Gateway abstracts the payment provider.
	Gateway interface {
		CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (PaymentIntent, error)
		CreateCustomer(ctx context.Context, email, name, userID string) (Customer, error)
		ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
		CreateTransfer(ctx context.Context, amount int64, currency string, bank BankAccount, metadata map[string]string) (Transfer, error)
		// VerifyWebhook checks the provider signature and parses the payload;
		// it MUST fail closed on any signature mismatch.
		VerifyWebhook(payload []byte, sigHeader string) (Event, error)
	}
)

type CreateIntent struct {
	Amount   int64             `json:"amount" validate:"required,gt=0"`
	Currency string            `json:"currency" validate:"required,currency"`
	Metadata map[string]string `json:"metadata"`
}

type CreateCustomer struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type Withdrawal struct {
	TeacherID   string      `json:"teacherId" validate:"required"`
	Amount      float64     `json:"amount" validate:"required,gt=0"`
	BankAccount BankAccount `json:"bankAccount" validate:"required"`
}
