package assignment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadySubmitted   = errors.New("assignment already submitted")
	ErrClosed             = errors.New("assignment is closed")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)

		// CreateSubmission must fail with ErrAlreadySubmitted when a row for
		// (assignment_id, student_id) already exists; never upsert.
		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		GetStudentSubmission(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) ([]Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
	}

	Service interface {
		Create(ctx context.Context, na NewAssignment) (Assignment, error)
		Get(ctx context.Context, id string) (Assignment, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Assignment, error)
		Publish(ctx context.Context, id string) (Assignment, error)
		Close(ctx context.Context, id string) (Assignment, error)

		Submit(ctx context.Context, ns NewSubmission) (Submission, error)
		Grade(ctx context.Context, submissionID string, gs GradeSubmission) (Submission, error)
		GetSubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
		GetStudentSubmissions(ctx context.Context, studentID string) ([]Submission, error)
		GetStats(ctx context.Context, assignmentID string) (Stats, error)
	}

	service struct {
		repo     Repository
		userSvc  user.Service
		notifSvc notification.Service
		mailSvc  core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, notifSvc notification.Service, mailSvc core.EmailService) *service {
	return &service{
		repo:     repo,
		userSvc:  userSvc,
		notifSvc: notifSvc,
		mailSvc:  mailSvc,
	}
}

// Create always stores a draft; drafts must be reviewed before publishing,
// so caller intent on is_published/status is ignored.
func (svc *service) Create(ctx context.Context, na NewAssignment) (Assignment, error) {
	now := time.Now().UTC()
	a := Assignment{
		TeacherID:       na.TeacherID,
		ClassID:         na.ClassID,
		SubjectID:       na.SubjectID,
		Title:           core.CleanString(na.Title),
		Description:     na.Description,
		MaxPoints:       na.MaxPoints,
		DueDate:         na.DueDate,
		IsPublished:     false,
		Status:          StatusDraft,
		DifficultyLevel: na.DifficultyLevel,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *service) Get(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, filter)
}

// Publish is the only path to is_published=true.
func (svc *service) Publish(ctx context.Context, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if a.Status == StatusClosed {
		return Assignment{}, ErrClosed
	}
	if a.IsPublished {
		return a, nil
	}
	a.IsPublished = true
	a.Status = StatusPublished
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

// Close is terminal.
func (svc *service) Close(ctx context.Context, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if a.Status == StatusClosed {
		return a, nil
	}
	a.Status = StatusClosed
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

// Submit records a student's one and only submission for an assignment.
// is_late is computed here and frozen; max_points and due_date are copied
// off the assignment so later edits do not rewrite history.
func (svc *service) Submit(ctx context.Context, ns NewSubmission) (Submission, error) {
	a, err := svc.repo.GetAssignment(ctx, ns.AssignmentID)
	if err != nil {
		return Submission{}, err
	}

	if _, err = svc.repo.GetStudentSubmission(ctx, a.ID, ns.StudentID); err == nil {
		return Submission{}, ErrAlreadySubmitted
	} else if errors.Cause(err) != ErrSubmissionNotFound {
		return Submission{}, err
	}

	now := time.Now().UTC()
	isLate := a.DueDate != nil && now.After(*a.DueDate)
	status := SubmissionSubmitted
	if isLate {
		status = SubmissionLate
	}
	sub := Submission{
		AssignmentID: a.ID,
		StudentID:    ns.StudentID,
		ClassID:      ns.ClassID,
		Content:      ns.Content,
		MaxPoints:    a.MaxPoints,
		Status:       status,
		SubmittedAt:  now,
		DueDate:      a.DueDate,
		IsLate:       isLate,
	}
	return svc.repo.CreateSubmission(ctx, sub)
}

// Grade unconditionally overwrites points/feedback/grade; regrading is
// always permitted.
func (svc *service) Grade(ctx context.Context, submissionID string, gs GradeSubmission) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}

	now := time.Now().UTC()
	points := gs.PointsEarned
	sub.PointsEarned = &points
	sub.Grade = gs.Grade
	sub.Feedback = gs.Feedback
	sub.Status = SubmissionGraded
	sub.GradedAt = &now
	sub, err = svc.repo.UpdateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, err
	}

	svc.notifyGraded(ctx, sub)
	return sub, nil
}

// notifyGraded is best effort and runs on the caller's context; a
// notification failure never fails the grading itself.
func (svc *service) notifyGraded(ctx context.Context, sub Submission) {
	a, err := svc.repo.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return
	}
	body := fmt.Sprintf("Your submission for %q was graded: %.1f/%d.", a.Title, *sub.PointsEarned, sub.MaxPoints)
	_, _ = svc.notifSvc.Notify(ctx, sub.StudentID, notification.KindGrading, "Submission graded", body)

	if student, err := svc.userSvc.GetByID(ctx, sub.StudentID); err == nil {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject: "Submission graded",
			BodyStr: body,
		})
	}
}

func (svc *service) GetSubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	if _, err := svc.repo.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, assignmentID, "")
}

func (svc *service) GetStudentSubmissions(ctx context.Context, studentID string) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, "", studentID)
}

// GetStats scans all submissions for the assignment; O(submissions) per call.
func (svc *service) GetStats(ctx context.Context, assignmentID string) (Stats, error) {
	subs, err := svc.GetSubmissions(ctx, assignmentID)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	var scoreSum float64
	var scored int
	for _, sub := range subs {
		stats.TotalSubmissions++
		if sub.Status == SubmissionGraded {
			stats.GradedSubmissions++
		}
		if sub.IsLate {
			stats.LateSubmissions++
		}
		if sub.Status == SubmissionGraded && sub.PointsEarned != nil {
			scoreSum += *sub.PointsEarned
			scored++
		}
	}
	if scored > 0 {
		avg := scoreSum / float64(scored)
		stats.AverageScore = &avg
	}
	return stats, nil
}
