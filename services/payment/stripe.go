// Package paymentsvc implements the billing.Gateway against the Stripe API.
package paymentsvc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	stripe "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/client"
	"github.com/stripe/stripe-go/webhook"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/billing"
)

type stripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        core.Logger
}

var _ billing.Gateway = (*stripeGateway)(nil)

func NewStripeGateway(conf *core.Config, logger core.Logger) *stripeGateway {
	api := &client.API{}
	api.Init(conf.Stripe.SecretKey, nil)
	return &stripeGateway{
		api:           api,
		webhookSecret: conf.Stripe.WebhookSecret,
		logger:        logger,
	}
}

func (gw *stripeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (billing.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := gw.api.PaymentIntents.New(params)
	if err != nil {
		return billing.PaymentIntent{}, errors.Wrap(err, "creating payment intent")
	}
	return paymentIntent(pi), nil
}

func (gw *stripeGateway) CreateCustomer(ctx context.Context, email, name, userID string) (billing.Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(billing.MetaUserID, userID)

	cus, err := gw.api.Customers.New(params)
	if err != nil {
		return billing.Customer{}, errors.Wrap(err, "creating customer")
	}
	return billing.Customer{ID: cus.ID}, nil
}

func (gw *stripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]billing.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}
	params.Context = ctx

	methods := make([]billing.PaymentMethod, 0)
	iter := gw.api.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		method := billing.PaymentMethod{ID: pm.ID}
		if pm.Card != nil {
			method.Brand = string(pm.Card.Brand)
			method.Last4 = pm.Card.Last4
			method.ExpMonth = pm.Card.ExpMonth
			method.ExpYear = pm.Card.ExpYear
		}
		methods = append(methods, method)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "listing payment methods")
	}
	return methods, nil
}

// CreateTransfer tokenizes the bank account then moves the funds; Stripe has
// no single call for payouts to external accounts.
func (gw *stripeGateway) CreateTransfer(ctx context.Context, amount int64, currency string, bank billing.BankAccount, metadata map[string]string) (billing.Transfer, error) {
	tokParams := &stripe.TokenParams{
		BankAccount: &stripe.BankAccountParams{
			Country:           stripe.String("US"),
			Currency:          stripe.String(currency),
			AccountNumber:     stripe.String(bank.AccountNumber),
			RoutingNumber:     stripe.String(bank.RoutingNumber),
			AccountHolderName: stripe.String(bank.AccountHolderName),
			AccountHolderType: stripe.String("individual"),
		},
	}
	tokParams.Context = ctx

	tok, err := gw.api.Tokens.New(tokParams)
	if err != nil {
		return billing.Transfer{}, errors.Wrap(err, "tokenizing bank account")
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(tok.ID),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	tr, err := gw.api.Transfers.New(params)
	if err != nil {
		return billing.Transfer{}, errors.Wrap(err, "creating transfer")
	}
	return transfer(tr), nil
}

func (gw *stripeGateway) VerifyWebhook(payload []byte, sigHeader string) (billing.Event, error) {
	sevt, err := webhook.ConstructEvent(payload, sigHeader, gw.webhookSecret)
	if err != nil {
		return billing.Event{}, errors.Wrap(billing.ErrBadSignature, err.Error())
	}

	evt := billing.Event{ID: sevt.ID, Type: sevt.Type}
	switch sevt.Type {
	case billing.EventPaymentSucceeded, billing.EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(sevt.Data.Raw, &pi); err != nil {
			return billing.Event{}, errors.Wrap(billing.ErrBadEvent, err.Error())
		}
		intent := paymentIntent(&pi)
		evt.Intent = &intent
	case billing.EventTransferCreated:
		var tr stripe.Transfer
		if err := json.Unmarshal(sevt.Data.Raw, &tr); err != nil {
			return billing.Event{}, errors.Wrap(billing.ErrBadEvent, err.Error())
		}
		tro := transfer(&tr)
		evt.TransferObj = &tro
	default:
		gw.logger.Debug("unhandled webhook event type: " + sevt.Type)
	}
	return evt, nil
}

func paymentIntent(pi *stripe.PaymentIntent) billing.PaymentIntent {
	return billing.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

func transfer(tr *stripe.Transfer) billing.Transfer {
	t := billing.Transfer{
		ID:       tr.ID,
		Amount:   tr.Amount,
		Currency: string(tr.Currency),
		Metadata: tr.Metadata,
	}
	if tr.Destination != nil {
		t.Destination = tr.Destination.ID
	}
	return t
}
