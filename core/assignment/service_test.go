package assignment_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

type testEnv struct {
	svc      assignment.Service
	notifSvc notification.Service
	usrRepo  user.Repository
	student  user.User
	teacher  user.User
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	conf := &core.Config{Debug: true, TestMode: true}

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db))
	svc := assignment.NewService(inmemdb.NewAssignmentRepository(db), usrSvc, notifSvc, mailSvc)

	return &testEnv{
		svc:      svc,
		notifSvc: notifSvc,
		usrRepo:  usrRepo,
		student:  createUser(t, usrRepo, "Student", "student", user.RoleStudent),
		teacher:  createUser(t, usrRepo, "Teacher", "teacher", user.RoleTeacher),
	}
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

func (env *testEnv) createAssignment(t *testing.T, dueDate *time.Time) assignment.Assignment {
	t.Helper()
	a, err := env.svc.Create(context.Background(), assignment.NewAssignment{
		TeacherID:       env.teacher.ID,
		SubjectID:       "sub1",
		Title:           "Fractions worksheet",
		MaxPoints:       20,
		DueDate:         dueDate,
		DifficultyLevel: assignment.DifficultyMedium,
	})
	if err != nil {
		t.Fatalf("svc.Create() failed: %v", err)
	}
	return a
}

func Test_service_Create_alwaysDraft(t *testing.T) {
	env := setup(t)
	a := env.createAssignment(t, nil)

	if a.Status != assignment.StatusDraft {
		t.Errorf("Status = %q; want %q", a.Status, assignment.StatusDraft)
	}
	if a.IsPublished {
		t.Error("IsPublished = true; want false")
	}
}

func Test_service_PublishAndClose(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.createAssignment(t, nil)

	published, err := env.svc.Publish(ctx, a.ID)
	if err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if !published.IsPublished || published.Status != assignment.StatusPublished {
		t.Errorf("publish: status = %q, is_published = %v", published.Status, published.IsPublished)
	}

	// publishing again is a no-op
	if _, err = env.svc.Publish(ctx, a.ID); err != nil {
		t.Fatalf("Publish() retry failed: %v", err)
	}

	closed, err := env.svc.Close(ctx, a.ID)
	if err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if closed.Status != assignment.StatusClosed {
		t.Errorf("close: status = %q; want %q", closed.Status, assignment.StatusClosed)
	}

	// closed assignments cannot be re-published
	if _, err = env.svc.Publish(ctx, a.ID); errors.Cause(err) != assignment.ErrClosed {
		t.Errorf("Publish() on closed err = %v; want %v", err, assignment.ErrClosed)
	}
}

func Test_service_Submit(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.createAssignment(t, nil)

	sub, err := env.svc.Submit(ctx, assignment.NewSubmission{
		AssignmentID: a.ID,
		StudentID:    env.student.ID,
		Content:      "my answers",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if sub.Status != assignment.SubmissionSubmitted {
		t.Errorf("Status = %q; want %q", sub.Status, assignment.SubmissionSubmitted)
	}
	if sub.IsLate {
		t.Error("IsLate = true; want false")
	}
	if sub.MaxPoints != a.MaxPoints {
		t.Errorf("MaxPoints = %d; want %d", sub.MaxPoints, a.MaxPoints)
	}

	// one submission per (assignment, student)
	_, err = env.svc.Submit(ctx, assignment.NewSubmission{
		AssignmentID: a.ID,
		StudentID:    env.student.ID,
		Content:      "second try",
	})
	if errors.Cause(err) != assignment.ErrAlreadySubmitted {
		t.Errorf("Submit() twice err = %v; want %v", err, assignment.ErrAlreadySubmitted)
	}

	_, err = env.svc.Submit(ctx, assignment.NewSubmission{
		AssignmentID: "nope",
		StudentID:    env.student.ID,
		Content:      "hello",
	})
	if errors.Cause(err) != assignment.ErrNotFound {
		t.Errorf("Submit() on missing assignment err = %v; want %v", err, assignment.ErrNotFound)
	}
}

func Test_service_Submit_lateIsFrozen(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	due := time.Now().Add(-time.Hour)
	a := env.createAssignment(t, &due)

	sub, err := env.svc.Submit(ctx, assignment.NewSubmission{
		AssignmentID: a.ID,
		StudentID:    env.student.ID,
		Content:      "sorry, late",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if !sub.IsLate {
		t.Error("IsLate = false; want true")
	}
	if sub.Status != assignment.SubmissionLate {
		t.Errorf("Status = %q; want %q", sub.Status, assignment.SubmissionLate)
	}

	// grading moves the status but is_late stays frozen
	graded, err := env.svc.Grade(ctx, sub.ID, assignment.GradeSubmission{PointsEarned: 12, Grade: "C"})
	if err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	if !graded.IsLate {
		t.Error("IsLate lost after grading")
	}
}

func Test_service_Grade(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.createAssignment(t, nil)

	sub, err := env.svc.Submit(ctx, assignment.NewSubmission{
		AssignmentID: a.ID,
		StudentID:    env.student.ID,
		Content:      "my answers",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	graded, err := env.svc.Grade(ctx, sub.ID, assignment.GradeSubmission{PointsEarned: 15, Grade: "B", Feedback: "solid"})
	if err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	if graded.Status != assignment.SubmissionGraded {
		t.Errorf("Status = %q; want %q", graded.Status, assignment.SubmissionGraded)
	}
	if graded.PointsEarned == nil || *graded.PointsEarned != 15 {
		t.Errorf("PointsEarned = %v; want 15", graded.PointsEarned)
	}
	if graded.GradedAt == nil {
		t.Error("GradedAt not set")
	}

	// the student is notified before Grade returns
	notifs, err := env.notifSvc.QueryByUser(ctx, env.student.ID)
	if err != nil {
		t.Fatalf("QueryByUser() failed: %v", err)
	}
	var notified bool
	for _, n := range notifs {
		if n.Kind == notification.KindGrading {
			notified = true
		}
	}
	if !notified {
		t.Error("student not notified of the grade")
	}

	// regrading overwrites
	regraded, err := env.svc.Grade(ctx, sub.ID, assignment.GradeSubmission{PointsEarned: 18, Grade: "A", Feedback: "even better"})
	if err != nil {
		t.Fatalf("Grade() regrade failed: %v", err)
	}
	if *regraded.PointsEarned != 18 || regraded.Grade != "A" {
		t.Errorf("regrade = %v/%q; want 18/A", *regraded.PointsEarned, regraded.Grade)
	}

	if _, err = env.svc.Grade(ctx, "nope", assignment.GradeSubmission{PointsEarned: 1}); errors.Cause(err) != assignment.ErrSubmissionNotFound {
		t.Errorf("Grade() on missing submission err = %v; want %v", err, assignment.ErrSubmissionNotFound)
	}
}

func Test_service_GetStats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	due := time.Now().Add(-time.Hour)
	a := env.createAssignment(t, &due)

	// no submissions yet
	stats, err := env.svc.GetStats(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.TotalSubmissions != 0 || stats.AverageScore != nil {
		t.Errorf("empty stats = %+v", stats)
	}

	other := createUser(t, env.usrRepo, "Other", "other", user.RoleStudent)
	sub1, err := env.svc.Submit(ctx, assignment.NewSubmission{AssignmentID: a.ID, StudentID: env.student.ID, Content: "a"})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if _, err = env.svc.Submit(ctx, assignment.NewSubmission{AssignmentID: a.ID, StudentID: other.ID, Content: "b"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if _, err = env.svc.Grade(ctx, sub1.ID, assignment.GradeSubmission{PointsEarned: 16, Grade: "B"}); err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}

	stats, err = env.svc.GetStats(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.TotalSubmissions != 2 {
		t.Errorf("TotalSubmissions = %d; want 2", stats.TotalSubmissions)
	}
	if stats.GradedSubmissions != 1 {
		t.Errorf("GradedSubmissions = %d; want 1", stats.GradedSubmissions)
	}
	if stats.LateSubmissions != 2 {
		t.Errorf("LateSubmissions = %d; want 2", stats.LateSubmissions)
	}
	if stats.AverageScore == nil || *stats.AverageScore != 16 {
		t.Errorf("AverageScore = %v; want 16", stats.AverageScore)
	}

	if _, err = env.svc.GetStats(ctx, "nope"); errors.Cause(err) != assignment.ErrNotFound {
		t.Errorf("GetStats() on missing assignment err = %v; want %v", err, assignment.ErrNotFound)
	}
}
