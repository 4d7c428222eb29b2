package paymentsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/trezcool/darasa/core/billing"
)

// DummyGateway records calls in memory and never talks to a provider.
// Tests can override Fail to exercise provider-failure paths, and stuff
// Events to drive webhook verification.
type DummyGateway struct {
	mu sync.Mutex

	Fail   error                    // returned by all calls when set
	Events map[string]billing.Event // payload (as string) -> verified event

	Intents   []billing.PaymentIntent
	Customers []billing.Customer
	Transfers []billing.Transfer

	seq int
}

var _ billing.Gateway = (*DummyGateway)(nil)

func NewDummyGateway() *DummyGateway {
	return &DummyGateway{Events: make(map[string]billing.Event)}
}

func (gw *DummyGateway) nextID(prefix string) string {
	gw.seq++
	return fmt.Sprintf("%s_%03d", prefix, gw.seq)
}

func (gw *DummyGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (billing.PaymentIntent, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.Fail != nil {
		return billing.PaymentIntent{}, gw.Fail
	}
	pi := billing.PaymentIntent{
		ID:           gw.nextID("pi"),
		ClientSecret: gw.nextID("pi_secret"),
		Amount:       amount,
		Currency:     currency,
		Metadata:     metadata,
	}
	gw.Intents = append(gw.Intents, pi)
	return pi, nil
}

func (gw *DummyGateway) CreateCustomer(ctx context.Context, email, name, userID string) (billing.Customer, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.Fail != nil {
		return billing.Customer{}, gw.Fail
	}
	cus := billing.Customer{ID: gw.nextID("cus")}
	gw.Customers = append(gw.Customers, cus)
	return cus, nil
}

func (gw *DummyGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]billing.PaymentMethod, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.Fail != nil {
		return nil, gw.Fail
	}
	return []billing.PaymentMethod{}, nil
}

func (gw *DummyGateway) CreateTransfer(ctx context.Context, amount int64, currency string, bank billing.BankAccount, metadata map[string]string) (billing.Transfer, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.Fail != nil {
		return billing.Transfer{}, gw.Fail
	}
	tr := billing.Transfer{
		ID:          gw.nextID("tr"),
		Amount:      amount,
		Currency:    currency,
		Destination: "ba_" + bank.AccountNumber,
		Metadata:    metadata,
	}
	gw.Transfers = append(gw.Transfers, tr)
	return tr, nil
}

func (gw *DummyGateway) VerifyWebhook(payload []byte, sigHeader string) (billing.Event, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.Fail != nil {
		return billing.Event{}, gw.Fail
	}
	if sigHeader == "" {
		return billing.Event{}, billing.ErrBadSignature
	}
	if evt, ok := gw.Events[string(payload)]; ok {
		return evt, nil
	}
	return billing.Event{}, billing.ErrBadSignature
}
