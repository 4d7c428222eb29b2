package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/catalog"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/wallet"
	emailsvc "github.com/trezcool/darasa/services/email"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

type testEnv struct {
	db       *inmemdb.DB
	usrRepo  user.Repository
	classSvc class.Service
	walSvc   wallet.Service
	notifSvc notification.Service
	svc      session.Service

	teacher user.User
	student user.User
	subject catalog.Subject
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	conf := &core.Config{Debug: true, TestMode: true}

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	catRepo := inmemdb.NewCatalogRepository(db)
	classRepo := inmemdb.NewClassRepository(db)
	sesRepo := inmemdb.NewSessionRepository(db)
	walRepo := inmemdb.NewWalletRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	catalogSvc := catalog.NewService(catRepo)
	classSvc := class.NewService(classRepo, usrSvc, catalogSvc)
	walSvc := wallet.NewService(db, walRepo)
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db))
	svc := session.NewService(db, sesRepo, classSvc, walSvc, usrSvc, notifSvc, mailSvc)

	env := &testEnv{
		db:       db,
		usrRepo:  usrRepo,
		classSvc: classSvc,
		walSvc:   walSvc,
		notifSvc: notifSvc,
		svc:      svc,
		teacher:  createUser(t, usrRepo, "Teacher", "teacher", user.RoleTeacher),
		student:  createUser(t, usrRepo, "Student", "student", user.RoleStudent),
	}

	sub, err := catRepo.CreateSubject(ctx, catalog.Subject{Name: "Mathematics", Category: "STEM", IsActive: true})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	env.subject = sub
	return env
}

func createUser(t *testing.T, repo user.Repository, name, uname, role string) user.User {
	t.Helper()
	usr := user.User{
		Name:     name,
		Username: uname,
		Email:    uname + "@test.cd",
		Role:     role,
	}
	usr.SetActive(true)
	if err := usr.SetPassword("pwd"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) createClass(t *testing.T, rate float64) class.Class {
	t.Helper()
	cls, err := env.classSvc.Create(context.Background(), class.NewClass{
		TeacherID:  env.teacher.ID,
		StudentID:  env.student.ID,
		SubjectID:  env.subject.ID,
		Title:      "Algebra basics",
		HourlyRate: rate,
		Currency:   "usd",
		StartDate:  time.Now(),
	})
	if err != nil {
		t.Fatalf("classSvc.Create() failed: %v", err)
	}
	return cls
}

func (env *testEnv) createSession(t *testing.T, classID string, minutes int) session.ClassSession {
	t.Helper()
	start := time.Now().Add(time.Hour)
	ses, err := env.svc.Create(context.Background(), session.NewSession{
		ClassID:        classID,
		Title:          "Linear equations",
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Duration(minutes) * time.Minute),
	})
	if err != nil {
		t.Fatalf("svc.Create() failed: %v", err)
	}
	return ses
}

func (env *testEnv) topUp(t *testing.T, userID string, tokens int) {
	t.Helper()
	if _, err := env.walSvc.AdjustTokens(context.Background(), userID, tokens, wallet.TokenOpAdd); err != nil {
		t.Fatalf("AdjustTokens() failed: %v", err)
	}
}

func (env *testEnv) tokens(t *testing.T, userID string) int {
	t.Helper()
	w, err := env.walSvc.GetOrCreateWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetOrCreateWallet() failed: %v", err)
	}
	return w.Tokens
}

func TestTokensForDuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    int
	}{
		{minutes: 60, want: 10},
		{minutes: 90, want: 15},
		{minutes: 30, want: 5},
		{minutes: 45, want: 8},  // 7.5 rounds up
		{minutes: 61, want: 11}, // partial hours always round up
		{minutes: 120, want: 20},
		{minutes: 0, want: 0},
	}
	for _, tt := range tests {
		if got := session.TokensForDuration(tt.minutes); got != tt.want {
			t.Errorf("TokensForDuration(%d) = %d; want %d", tt.minutes, got, tt.want)
		}
	}
}

func Test_service_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := env.createClass(t, 20)

	ses := env.createSession(t, cls.ID, 90)
	if ses.Status != session.StatusScheduled {
		t.Errorf("Status = %q; want %q", ses.Status, session.StatusScheduled)
	}
	if ses.TokensCharged != 15 {
		t.Errorf("TokensCharged = %d; want 15", ses.TokensCharged)
	}
	if ses.Rate != cls.HourlyRate {
		t.Errorf("Rate = %v; want %v", ses.Rate, cls.HourlyRate)
	}
	if ses.TeacherID != env.teacher.ID || ses.StudentID != env.student.ID {
		t.Errorf("participants not copied from class")
	}

	// scheduling notifies the student
	notifs, err := env.notifSvc.QueryByUser(ctx, env.student.ID)
	if err != nil {
		t.Fatalf("QueryByUser() failed: %v", err)
	}
	var notified bool
	for _, n := range notifs {
		if n.Kind == notification.KindSession {
			notified = true
		}
	}
	if !notified {
		t.Error("student not notified of the scheduled session")
	}

	// sessions cannot be scheduled against a paused class
	if _, err := env.classSvc.Update(ctx, cls.ID, class.UpdateClass{Status: class.StatusPaused}); err != nil {
		t.Fatalf("classSvc.Update() failed: %v", err)
	}
	start := time.Now().Add(time.Hour)
	_, err = env.svc.Create(ctx, session.NewSession{
		ClassID:        cls.ID,
		Title:          "nope",
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
	})
	if errors.Cause(err) != session.ErrClassNotActive {
		t.Errorf("Create() err = %v; want %v", err, session.ErrClassNotActive)
	}
}

func Test_service_UpdateStatus_transitions(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := env.createClass(t, 20)
	env.topUp(t, env.student.ID, 100)

	// scheduled cannot jump straight to completed
	ses := env.createSession(t, cls.ID, 60)
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusCompleted); errors.Cause(err) != session.ErrInvalidTransition {
		t.Errorf("scheduled -> completed err = %v; want %v", err, session.ErrInvalidTransition)
	}

	// cancelled is terminal
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusCancelled); err != nil {
		t.Fatalf("scheduled -> cancelled failed: %v", err)
	}
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusInProgress); errors.Cause(err) != session.ErrInvalidTransition {
		t.Errorf("cancelled -> in_progress err = %v; want %v", err, session.ErrInvalidTransition)
	}

	// happy path keeps the first actual_start across repeated "start" calls
	ses = env.createSession(t, cls.ID, 60)
	started, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusInProgress)
	if err != nil {
		t.Fatalf("scheduled -> in_progress failed: %v", err)
	}
	if started.ActualStart == nil {
		t.Fatal("ActualStart not set")
	}

	if _, err = env.svc.UpdateStatus(ctx, ses.ID, "paused"); errors.Cause(err) != session.ErrInvalidTransition {
		t.Errorf("in_progress -> paused err = %v; want %v", err, session.ErrInvalidTransition)
	}
}

func Test_service_UpdateStatus_settlesOnCompletion(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := env.createClass(t, 20)
	env.topUp(t, env.student.ID, 50)

	ses := env.createSession(t, cls.ID, 60) // 10 tokens
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusInProgress); err != nil {
		t.Fatalf("starting session failed: %v", err)
	}
	settled, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusCompleted)
	if err != nil {
		t.Fatalf("completing session failed: %v", err)
	}

	if settled.TokensDeductedAt == nil || settled.TokensCreditedAt == nil {
		t.Error("settlement stamps not set")
	}
	if got := env.tokens(t, env.student.ID); got != 40 {
		t.Errorf("student tokens = %d; want 40", got)
	}
	// actual duration is near-zero here so the teacher earning rounds down
	teacherTokens := env.tokens(t, env.teacher.ID)
	wantTeacher := wallet.TeacherTokensFor(settled.Rate * settled.ActualDurationHours())
	if teacherTokens != wantTeacher {
		t.Errorf("teacher tokens = %d; want %d", teacherTokens, wantTeacher)
	}

	got, err := env.classSvc.Get(ctx, cls.ID)
	if err != nil {
		t.Fatalf("classSvc.Get() failed: %v", err)
	}
	if got.CompletedSessions != 1 {
		t.Errorf("CompletedSessions = %d; want 1", got.CompletedSessions)
	}

	// both sides of the settlement hit the ledger, keyed by the session id
	studentTxns, err := env.walSvc.QueryTransactions(ctx, env.student.ID)
	if err != nil {
		t.Fatalf("QueryTransactions() failed: %v", err)
	}
	var found bool
	wantCost := -float64(settled.TokensCharged) * wallet.StudentTokenRateUSD
	for _, txn := range studentTxns {
		if txn.ReferenceID == ses.ID && txn.Type == wallet.TxnTypePayment {
			found = true
			if txn.Amount != wantCost {
				t.Errorf("student txn amount = %v; want %v", txn.Amount, wantCost)
			}
		}
	}
	if !found {
		t.Error("student payment transaction not recorded")
	}
}

func Test_service_Settle(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := env.createClass(t, 20)
	env.topUp(t, env.student.ID, 30)

	ses := env.createSession(t, cls.ID, 60)
	if _, err := env.svc.Settle(ctx, ses.ID); errors.Cause(err) != session.ErrInvalidTransition {
		t.Errorf("Settle() on scheduled session err = %v; want %v", err, session.ErrInvalidTransition)
	}

	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusInProgress); err != nil {
		t.Fatalf("starting session failed: %v", err)
	}
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusCompleted); err != nil {
		t.Fatalf("completing session failed: %v", err)
	}
	balance := env.tokens(t, env.student.ID)

	// settling an already-settled session is a no-op
	if _, err := env.svc.Settle(ctx, ses.ID); err != nil {
		t.Fatalf("Settle() retry failed: %v", err)
	}
	if got := env.tokens(t, env.student.ID); got != balance {
		t.Errorf("student tokens = %d after retry; want %d", got, balance)
	}

	got, err := env.classSvc.Get(ctx, cls.ID)
	if err != nil {
		t.Fatalf("classSvc.Get() failed: %v", err)
	}
	if got.CompletedSessions != 1 {
		t.Errorf("CompletedSessions = %d; want 1", got.CompletedSessions)
	}
}

func Test_service_UpdateStatus_insufficientTokens(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := env.createClass(t, 20)
	// student wallet stays empty

	ses := env.createSession(t, cls.ID, 60)
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusInProgress); err != nil {
		t.Fatalf("starting session failed: %v", err)
	}

	_, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusCompleted)
	if errors.Cause(err) != wallet.ErrInsufficientTokens {
		t.Errorf("completing session err = %v; want %v", err, wallet.ErrInsufficientTokens)
	}

	// the status write sticks even when settlement fails; Settle retries later
	got, err := env.svc.Get(ctx, ses.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != session.StatusCompleted {
		t.Errorf("Status = %q; want %q", got.Status, session.StatusCompleted)
	}
	if got.TokensDeductedAt != nil {
		t.Error("TokensDeductedAt set after failed settlement; want nil")
	}
	if balance := env.tokens(t, env.student.ID); balance != 0 {
		t.Errorf("student tokens = %d; want 0", balance)
	}
}

func Test_service_Settle_retryAfterTopUp(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := env.createClass(t, 20)
	// student wallet starts empty so the first settlement fails

	ses := env.createSession(t, cls.ID, 60) // 10 tokens
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusInProgress); err != nil {
		t.Fatalf("starting session failed: %v", err)
	}
	if _, err := env.svc.UpdateStatus(ctx, ses.ID, session.StatusCompleted); errors.Cause(err) != wallet.ErrInsufficientTokens {
		t.Fatalf("completing session err = %v; want %v", err, wallet.ErrInsufficientTokens)
	}

	env.topUp(t, env.student.ID, 50)
	settled, err := env.svc.Settle(ctx, ses.ID)
	if err != nil {
		t.Fatalf("Settle() retry failed: %v", err)
	}
	if settled.TokensDeductedAt == nil || settled.TokensCreditedAt == nil {
		t.Error("settlement stamps not set after retry")
	}
	if got := env.tokens(t, env.student.ID); got != 40 {
		t.Errorf("student tokens = %d; want 40 (debit must apply on retry)", got)
	}

	got, err := env.classSvc.Get(ctx, cls.ID)
	if err != nil {
		t.Fatalf("classSvc.Get() failed: %v", err)
	}
	if got.CompletedSessions != 1 {
		t.Errorf("CompletedSessions = %d; want 1", got.CompletedSessions)
	}
}
