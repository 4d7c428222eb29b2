package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/billing"
	"github.com/trezcool/darasa/core/catalog"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/wallet"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	paymentsvc "github.com/trezcool/darasa/services/payment"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

type testApp struct {
	conf    *core.Config
	server  Server
	gateway *paymentsvc.DummyGateway

	usrRepo user.Repository
	walSvc  wallet.Service

	student user.User
	teacher user.User
	admin   user.User
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := &core.Config{
		Debug:     true,
		TestMode:  true,
		SecretKey: "secret",
		AppName:   "Darasa",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Server.PasswordResetTimeoutDelta = 3 * 24 * time.Hour

	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	logger.Enable(false)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	catalogSvc := catalog.NewService(inmemdb.NewCatalogRepository(db))
	classSvc := class.NewService(inmemdb.NewClassRepository(db), usrSvc, catalogSvc)
	walSvc := wallet.NewService(db, inmemdb.NewWalletRepository(db))
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db))
	sessionSvc := session.NewService(db, inmemdb.NewSessionRepository(db), classSvc, walSvc, usrSvc, notifSvc, mailSvc)
	assignmentSvc := assignment.NewService(inmemdb.NewAssignmentRepository(db), usrSvc, notifSvc, mailSvc)
	gateway := paymentsvc.NewDummyGateway()
	billingSvc := billing.NewService(db, gateway, walSvc, notifSvc, logger)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	app := &testApp{
		conf:    conf,
		gateway: gateway,
		usrRepo: usrRepo,
		walSvc:  walSvc,
	}
	app.server = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		CatalogSvc:     catalogSvc,
		ClassSvc:       classSvc,
		SessionSvc:     sessionSvc,
		AssignmentSvc:  assignmentSvc,
		WalletSvc:      walSvc,
		NotifSvc:       notifSvc,
		BillingSvc:     billingSvc,
		DisableReqLogs: true,
	})

	app.student = app.createUser(t, "Student", "student", user.RoleStudent)
	app.teacher = app.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	app.admin = app.createUser(t, "Admin", "admin", user.RoleAdmin)
	return app
}

func (app *testApp) createUser(t *testing.T, name, uname, role string) user.User {
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
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (app *testApp) request(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func Test_health(t *testing.T) {
	app := newTestApp(t)
	rec := app.request(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func Test_notFound(t *testing.T) {
	app := newTestApp(t)
	rec := app.request(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found","path":"/api/nope"}`, rec.Body.String())
}

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name     string
		body     []byte
		wantCode int
	}{
		{name: "ok", body: marshalObj(t, LoginRequest{Username: "student", Password: "pwd"}), wantCode: http.StatusOK},
		{name: "by email", body: marshalObj(t, LoginRequest{Username: "student@test.cd", Password: "pwd"}), wantCode: http.StatusOK},
		{name: "wrong password", body: marshalObj(t, LoginRequest{Username: "student", Password: "nope"}), wantCode: http.StatusBadRequest},
		{name: "unknown user", body: marshalObj(t, LoginRequest{Username: "ghost", Password: "pwd"}), wantCode: http.StatusBadRequest},
		{name: "missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.request(http.MethodPost, "/api/users/login", "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_authRequired(t *testing.T) {
	app := newTestApp(t)

	paths := []string{
		"/api/users/me",
		"/api/classes",
		"/api/sessions",
		"/api/assignments",
		"/api/student/wallet",
	}
	for _, path := range paths {
		rec := app.request(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path) // missing or malformed jwt
	}
}

func Test_roleEnforcement(t *testing.T) {
	app := newTestApp(t)
	studentToken := app.getToken(t, app.student)

	body := marshalObj(t, billing.Withdrawal{
		TeacherID: app.teacher.ID,
		Amount:    20,
		BankAccount: billing.BankAccount{
			AccountNumber:     "000123456789",
			RoutingNumber:     "110000000",
			AccountHolderName: "Teacher T",
		},
	})
	rec := app.request(http.MethodPost, "/api/process-withdrawal", studentToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admins pass the teacher gate
	if _, err := app.walSvc.AdjustTokens(context.Background(), app.teacher.ID, 600, wallet.TokenOpAdd); err != nil {
		t.Fatalf("AdjustTokens() failed: %v", err)
	}
	rec = app.request(http.MethodPost, "/api/process-withdrawal", app.getToken(t, app.admin), body)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success    bool   `json:"success"`
		TransferID string `json:"transferId"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TransferID)
}

func Test_assignmentApi_submitUsesTokenIdentity(t *testing.T) {
	app := newTestApp(t)

	body := marshalObj(t, assignment.NewAssignment{
		TeacherID:       app.teacher.ID,
		SubjectID:       "math",
		Title:           "Fractions drill",
		MaxPoints:       20,
		DifficultyLevel: assignment.DifficultyEasy,
	})
	rec := app.request(http.MethodPost, "/api/assignments", app.getToken(t, app.teacher), body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	var a assignment.Assignment
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))

	// the body cannot name someone else as the submitter; the token wins
	body = marshalObj(t, map[string]string{"student_id": app.teacher.ID, "content": "my answers"})
	rec = app.request(http.MethodPost, "/api/assignments/"+a.ID+"/submit", app.getToken(t, app.student), body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var sub assignment.Submission
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, app.student.ID, sub.StudentID)
}

func Test_billingApi_createPaymentIntent(t *testing.T) {
	app := newTestApp(t)
	token := app.getToken(t, app.student)

	body := marshalObj(t, billing.CreateIntent{
		Amount:   500,
		Currency: "usd",
		Metadata: map[string]string{"userId": app.student.ID, "tokens": "50"},
	})
	rec := app.request(http.MethodPost, "/api/create-payment-intent", token, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ClientSecret    string `json:"clientSecret"`
		PaymentIntentID string `json:"paymentIntentId"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ClientSecret)
	assert.NotEmpty(t, resp.PaymentIntentID)

	// validation failures come back as field errors
	rec = app.request(http.MethodPost, "/api/create-payment-intent", token, []byte(`{"amount":0,"currency":"usd"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_billingApi_webhook(t *testing.T) {
	app := newTestApp(t)

	payload := []byte(`{"id":"evt_1"}`)
	app.gateway.Events[string(payload)] = billing.Event{
		ID:   "evt_1",
		Type: billing.EventPaymentSucceeded,
		Intent: &billing.PaymentIntent{
			ID:       "pi_1",
			Metadata: map[string]string{"userId": app.student.ID, "userRole": "student", "tokens": "50"},
		},
	}

	// unsigned payloads are rejected before dispatch
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", bytes.NewReader(payload))
	req.Header.Set("stripe-signature", "t=123,v1=abc")
	rec = httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	w, err := app.walSvc.GetOrCreateWallet(context.Background(), app.student.ID)
	assert.NoError(t, err)
	assert.Equal(t, 50, w.Tokens)
}

func Test_studentApi_wallet(t *testing.T) {
	app := newTestApp(t)
	token := app.getToken(t, app.student)

	rec := app.request(http.MethodGet, "/api/student/wallet?userId="+app.student.ID, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	var w wallet.Wallet
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	assert.Equal(t, app.student.ID, w.UserID)
	assert.Equal(t, "usd", w.Currency)
	assert.Equal(t, 0, w.Tokens)
}

func Test_studentApi_dashboardStats(t *testing.T) {
	app := newTestApp(t)
	token := app.getToken(t, app.student)

	rec := app.request(http.MethodGet, "/api/student/dashboard/stats?userId="+app.student.ID, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats DashboardStats
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, DashboardStats{}, stats)
}

func Test_studentApi_listsAreNeverNull(t *testing.T) {
	app := newTestApp(t)
	token := app.getToken(t, app.student)

	for _, path := range []string{"/api/student/classes", "/api/student/assignments", "/api/student/sessions", "/api/student/notifications"} {
		rec := app.request(http.MethodGet, path+"?userId="+app.student.ID, token)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, "[]", rec.Body.String(), path)
	}
}
