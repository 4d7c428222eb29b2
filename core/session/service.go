package session

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/wallet"
)

var (
	// errors
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrClassNotActive    = errors.New("class is not active")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, ses ClassSession, exec ...core.DBExecutor) (ClassSession, error)
		GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (ClassSession, error)
		QuerySessions(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]ClassSession, error)
		UpdateSession(ctx context.Context, ses ClassSession, exec ...core.DBExecutor) (ClassSession, error)
		// StampSettlement sets the settlement columns guarded by
		// `tokens_deducted_at IS NULL`; it reports whether the stamp was won.
		StampSettlement(ctx context.Context, id string, at time.Time, earningUSD, costUSD float64, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSession) (ClassSession, error)
		Get(ctx context.Context, id string) (ClassSession, error)
		Query(ctx context.Context, filter *QueryFilter) ([]ClassSession, error)
		UpdateStatus(ctx context.Context, id, newStatus string) (ClassSession, error)
		// Settle retries the token settlement of a completed session; no-op
		// when already settled.
		Settle(ctx context.Context, id string) (ClassSession, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		classSvc class.Service
		walSvc   wallet.Service
		usrSvc   user.Service
		notifSvc notification.Service
		mailSvc  core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	classSvc class.Service,
	walSvc wallet.Service,
	usrSvc user.Service,
	notifSvc notification.Service,
	mailSvc core.EmailService,
) *service {
	return &service{
		db:       db,
		repo:     repo,
		classSvc: classSvc,
		walSvc:   walSvc,
		usrSvc:   usrSvc,
		notifSvc: notifSvc,
		mailSvc:  mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, ns NewSession) (ClassSession, error) {
	cls, err := svc.classSvc.Get(ctx, ns.ClassID)
	if err != nil {
		return ClassSession{}, err
	}
	if cls.Status != class.StatusActive {
		return ClassSession{}, ErrClassNotActive
	}

	now := time.Now().UTC()
	minutes := int(ns.ScheduledEnd.Sub(ns.ScheduledStart).Minutes())
	ses := ClassSession{
		ClassID:         cls.ID,
		TeacherID:       cls.TeacherID,
		StudentID:       cls.StudentID,
		Title:           core.CleanString(ns.Title),
		ScheduledStart:  ns.ScheduledStart.UTC(),
		ScheduledEnd:    ns.ScheduledEnd.UTC(),
		Status:          StatusScheduled,
		DurationMinutes: minutes,
		Rate:            cls.HourlyRate,
		TokensCharged:   TokensForDuration(minutes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ses, err = svc.repo.CreateSession(ctx, ses)
	if err != nil {
		return ClassSession{}, err
	}
	svc.notifyScheduled(ctx, ses)
	return ses, nil
}

// notifyScheduled tells the student about the new session. Best effort; a
// notification failure never fails the scheduling itself.
func (svc *service) notifyScheduled(ctx context.Context, ses ClassSession) {
	body := fmt.Sprintf("%q is scheduled for %s.", ses.Title, ses.ScheduledStart.Format(time.RFC1123))
	_, _ = svc.notifSvc.Notify(ctx, ses.StudentID, notification.KindSession, "Session scheduled", body)

	if student, err := svc.usrSvc.GetByID(ctx, ses.StudentID); err == nil {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject: "Session scheduled",
			BodyStr: body,
		})
	}
}

func (svc *service) Get(ctx context.Context, id string) (ClassSession, error) {
	return svc.repo.GetSession(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]ClassSession, error) {
	return svc.repo.QuerySessions(ctx, filter)
}

// UpdateStatus applies a status transition against the transition table.
// Completing a session triggers token settlement exactly once, guarded by
// the tokens_deducted_at stamp. The status write persists even when
// settlement fails (e.g. insufficient student tokens); Settle retries it.
func (svc *service) UpdateStatus(ctx context.Context, id, newStatus string) (ClassSession, error) {
	ses, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return ClassSession{}, err
	}
	if !CanTransition(ses.Status, newStatus) {
		return ClassSession{}, errors.Wrap(ErrInvalidTransition, fmt.Sprintf("%s -> %s", ses.Status, newStatus))
	}

	now := time.Now().UTC()
	ses.Status = newStatus
	ses.UpdatedAt = now
	switch newStatus {
	case StatusInProgress:
		if ses.ActualStart == nil { // repeated "start" calls must not overwrite
			ses.ActualStart = &now
		}
	case StatusCompleted:
		if ses.ActualEnd == nil {
			ses.ActualEnd = &now
		}
	}

	if ses, err = svc.repo.UpdateSession(ctx, ses); err != nil {
		return ClassSession{}, err
	}
	if newStatus != StatusCompleted {
		return ses, nil
	}

	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		return svc.settle(ctx, &ses, tx)
	})
	if err != nil {
		return ClassSession{}, err
	}
	return ses, nil
}

// Settle retries settlement of a completed-but-unsettled session, e.g. after
// a student tops up an insufficient balance.
func (svc *service) Settle(ctx context.Context, id string) (ClassSession, error) {
	ses, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return ClassSession{}, err
	}
	if ses.Status != StatusCompleted {
		return ClassSession{}, errors.Wrap(ErrInvalidTransition, "only completed sessions settle")
	}
	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		return svc.settle(ctx, &ses, tx)
	})
	if err != nil {
		return ClassSession{}, err
	}
	return ses, nil
}

func (svc *service) settle(ctx context.Context, ses *ClassSession, tx core.DBTransactor) error {
	cost := float64(ses.TokensCharged) * wallet.StudentTokenRateUSD
	earning := ses.Rate * ses.ActualDurationHours()

	stamped, err := svc.repo.StampSettlement(ctx, ses.ID, time.Now().UTC(), earning, cost, tx)
	if err != nil {
		return errors.Wrap(err, "stamping settlement")
	}
	if !stamped { // already settled
		return nil
	}

	if err = svc.walSvc.ProcessSessionPayment(ctx, wallet.SessionPayment{
		SessionID:          ses.ID,
		StudentID:          ses.StudentID,
		TeacherID:          ses.TeacherID,
		Tokens:             ses.TokensCharged,
		SessionCostUSD:     cost,
		TeacherEarningsUSD: earning,
	}, tx); err != nil {
		return errors.Wrap(err, "processing session payment")
	}

	if err = svc.classSvc.IncrementCompletedSessions(ctx, ses.ClassID, tx); err != nil {
		return errors.Wrap(err, "incrementing completed sessions")
	}

	if *ses, err = svc.repo.GetSession(ctx, ses.ID, tx); err != nil {
		return errors.Wrap(err, "reloading session")
	}
	return nil
}
