package billing

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/wallet"
)

var (
	// errors
	ErrProvider     = errors.New("payment provider error")
	ErrBadEvent     = errors.New("malformed webhook event")
	ErrBadSignature = errors.New("webhook signature verification failed")
)

type (
	Service interface {
		CreatePaymentIntent(ctx context.Context, ci CreateIntent) (PaymentIntent, error)
		CreateCustomer(ctx context.Context, cc CreateCustomer) (Customer, error)
		ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
		ProcessWithdrawal(ctx context.Context, wd Withdrawal) (wallet.WithdrawalRequest, error)
		// VerifyWebhook delegates to the gateway; exposed so the HTTP layer
		// can fail closed before dispatch.
		VerifyWebhook(payload []byte, sigHeader string) (Event, error)
		HandleEvent(ctx context.Context, evt Event) error
	}

	service struct {
		db       core.DB
		gateway  Gateway
		walSvc   wallet.Service
		notifSvc notification.Service
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, gateway Gateway, walSvc wallet.Service, notifSvc notification.Service, logger core.Logger) *service {
	return &service{
		db:       db,
		gateway:  gateway,
		walSvc:   walSvc,
		notifSvc: notifSvc,
		logger:   logger,
	}
}

// CreatePaymentIntent creates the provider intent and pre-records a pending
// deposit transaction keyed by the intent id, so a later
// payment_intent.payment_failed event has a row to flag.
func (svc *service) CreatePaymentIntent(ctx context.Context, ci CreateIntent) (PaymentIntent, error) {
	intent, err := svc.gateway.CreatePaymentIntent(ctx, ci.Amount, ci.Currency, ci.Metadata)
	if err != nil {
		return PaymentIntent{}, errors.Wrap(err, "creating payment intent")
	}

	if userID := ci.Metadata[MetaUserID]; userID != "" {
		if _, err = svc.walSvc.CreateTransaction(ctx, wallet.NewTransaction{
			UserID:      userID,
			Type:        wallet.TxnTypeDeposit,
			Amount:      float64(ci.Amount) / 100,
			Currency:    ci.Currency,
			Description: "Token purchase",
			Status:      wallet.TxnStatusPending,
			ReferenceID: intent.ID,
			Metadata:    ci.Metadata,
		}); err != nil {
			svc.logger.Error(fmt.Sprintf("pre-recording deposit: %v", err), err)
		}
	}
	return intent, nil
}

func (svc *service) CreateCustomer(ctx context.Context, cc CreateCustomer) (Customer, error) {
	return svc.gateway.CreateCustomer(ctx, cc.Email, cc.Name, cc.UserID)
}

func (svc *service) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	return svc.gateway.ListPaymentMethods(ctx, customerID)
}

// ProcessWithdrawal debits the teacher's tokens, records a pending
// withdrawal request and creates the provider transfer carrying the request
// id in its metadata. A provider failure refunds the debit locally.
func (svc *service) ProcessWithdrawal(ctx context.Context, wd Withdrawal) (wallet.WithdrawalRequest, error) {
	tokens := int(math.Ceil(wd.Amount / wallet.TeacherTokenRateUSD))
	if _, err := svc.walSvc.AdjustTokens(ctx, wd.TeacherID, tokens, wallet.TokenOpSubtract); err != nil {
		return wallet.WithdrawalRequest{}, err
	}

	last4 := wd.BankAccount.AccountNumber
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	req, err := svc.walSvc.CreateWithdrawalRequest(ctx, wallet.WithdrawalRequest{
		TeacherID: wd.TeacherID,
		AmountUSD: wd.Amount,
		Tokens:    tokens,
		BankLast4: last4,
	})
	if err != nil {
		return wallet.WithdrawalRequest{}, err
	}

	if _, err = svc.walSvc.CreateTransaction(ctx, wallet.NewTransaction{
		UserID:      wd.TeacherID,
		Type:        wallet.TxnTypeWithdrawal,
		Amount:      -wd.Amount,
		Description: fmt.Sprintf("Withdrawal to bank ****%s", last4),
		Status:      wallet.TxnStatusPending,
		ReferenceID: req.ID,
	}); err != nil {
		return wallet.WithdrawalRequest{}, err
	}

	transfer, err := svc.gateway.CreateTransfer(ctx, int64(math.Round(wd.Amount*100)), "usd", wd.BankAccount, map[string]string{
		MetaWithdrawalID: req.ID,
		MetaUserID:       wd.TeacherID,
	})
	if err != nil {
		// compensate: the provider moved nothing
		if _, rErr := svc.walSvc.AdjustTokens(ctx, wd.TeacherID, tokens, wallet.TokenOpAdd); rErr != nil {
			svc.logger.Error(fmt.Sprintf("refunding failed withdrawal: %v", rErr), rErr)
		}
		req.Status = wallet.WithdrawalFailed
		if _, rErr := svc.walSvc.UpdateWithdrawalRequest(ctx, req); rErr != nil {
			svc.logger.Error(fmt.Sprintf("flagging failed withdrawal %s: %v", req.ID, rErr), rErr)
		}
		if rErr := svc.walSvc.MarkTransactionFailed(ctx, req.ID); rErr != nil {
			svc.logger.Error(fmt.Sprintf("flagging failed withdrawal txn %s: %v", req.ID, rErr), rErr)
		}
		return wallet.WithdrawalRequest{}, errors.Wrap(ErrProvider, err.Error())
	}

	req.TransferID = transfer.ID
	return svc.walSvc.UpdateWithdrawalRequest(ctx, req)
}

func (svc *service) VerifyWebhook(payload []byte, sigHeader string) (Event, error) {
	return svc.gateway.VerifyWebhook(payload, sigHeader)
}

// HandleEvent dispatches a verified webhook event into the ledger.
func (svc *service) HandleEvent(ctx context.Context, evt Event) error {
	switch evt.Type {
	case EventPaymentSucceeded:
		return svc.handlePaymentSucceeded(ctx, evt)
	case EventPaymentFailed:
		return svc.handlePaymentFailed(ctx, evt)
	case EventTransferCreated:
		return svc.handleTransferCreated(ctx, evt)
	}
	svc.logger.Debug("ignoring webhook event " + evt.Type)
	return nil
}

// handlePaymentSucceeded credits the purchased tokens and completes the
// deposit record. Token pricing differs by role and is baked into the intent
// metadata, not recomputed. Duplicate deliveries are no-ops keyed on
// reference_id.
func (svc *service) handlePaymentSucceeded(ctx context.Context, evt Event) error {
	if evt.Intent == nil {
		return ErrBadEvent
	}
	meta := evt.Intent.Metadata
	userID := meta[MetaUserID]
	tokens, err := strconv.Atoi(meta[MetaTokens])
	if err != nil || userID == "" {
		return errors.Wrap(ErrBadEvent, "missing userId/tokens metadata")
	}
	role := meta[MetaUserRole]
	amountUSD := float64(tokens) * wallet.TokenRateFor(role)

	txn, err := svc.walSvc.GetTransactionByReference(ctx, evt.Intent.ID)
	switch errors.Cause(err) {
	case nil:
		if txn.Status != wallet.TxnStatusPending { // duplicate delivery
			return nil
		}
		// credit and completion commit together; a partial write would let a
		// redelivery credit the tokens twice
		err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
			if _, err := svc.walSvc.AdjustTokens(ctx, userID, tokens, wallet.TokenOpAdd, tx); err != nil {
				return errors.Wrap(err, "crediting tokens")
			}
			if err := svc.walSvc.MarkTransactionCompleted(ctx, evt.Intent.ID, tx); err != nil {
				return errors.Wrap(err, "completing deposit")
			}
			return nil
		})
		if err != nil {
			return err
		}
	case wallet.ErrTxnNotFound:
		// intent was not pre-recorded locally; record it now
		err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
			if _, err := svc.walSvc.AdjustTokens(ctx, userID, tokens, wallet.TokenOpAdd, tx); err != nil {
				return errors.Wrap(err, "crediting tokens")
			}
			if _, err := svc.walSvc.CreateTransaction(ctx, wallet.NewTransaction{
				UserID:      userID,
				Type:        wallet.TxnTypeDeposit,
				Amount:      amountUSD,
				Description: fmt.Sprintf("Token purchase (%s)", meta[MetaTokenPackage]),
				ReferenceID: evt.Intent.ID,
				Metadata:    meta,
			}, tx); err != nil {
				return errors.Wrap(err, "recording deposit")
			}
			return nil
		})
		if err != nil {
			return err
		}
	default:
		return err
	}

	_, _ = svc.notifSvc.Notify(ctx, userID, notification.KindPayment, "Tokens added",
		fmt.Sprintf("%d tokens were added to your wallet.", tokens))
	return nil
}

// handlePaymentFailed flags the pre-recorded deposit as failed; a missing
// record is a silent no-op.
func (svc *service) handlePaymentFailed(ctx context.Context, evt Event) error {
	if evt.Intent == nil {
		return ErrBadEvent
	}
	return svc.walSvc.MarkTransactionFailed(ctx, evt.Intent.ID)
}

// handleTransferCreated completes the teacher's withdrawal request. The
// request is resolved by the withdrawalRequestId carried in the transfer
// metadata; matching by teacher+pending alone is ambiguous when several
// requests are pending, so metadata takes precedence and teacher+oldest
// pending is only the fallback for transfers created out of band.
func (svc *service) handleTransferCreated(ctx context.Context, evt Event) error {
	if evt.TransferObj == nil {
		return ErrBadEvent
	}

	var req wallet.WithdrawalRequest
	var err error
	if reqID := evt.TransferObj.Metadata[MetaWithdrawalID]; reqID != "" {
		req, err = svc.walSvc.GetWithdrawalRequest(ctx, reqID)
	} else if teacherID := evt.TransferObj.Metadata[MetaUserID]; teacherID != "" {
		req, err = svc.walSvc.OldestPendingWithdrawal(ctx, teacherID)
	} else {
		return errors.Wrap(ErrBadEvent, "transfer carries no correlation metadata")
	}
	if err != nil {
		if errors.Cause(err) == wallet.ErrWithdrawalNotFound {
			svc.logger.Warn("transfer " + evt.TransferObj.ID + " matches no withdrawal request")
			return nil
		}
		return err
	}
	if req.Status != wallet.WithdrawalPending { // duplicate delivery
		return nil
	}

	req.Status = wallet.WithdrawalCompleted
	req.TransferID = evt.TransferObj.ID
	if _, err = svc.walSvc.UpdateWithdrawalRequest(ctx, req); err != nil {
		return err
	}
	return svc.walSvc.MarkTransactionCompleted(ctx, req.ID)
}
