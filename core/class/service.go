package class

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/catalog"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("class not found")
	ErrInvalidTransition = errors.New("invalid class status transition")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Class, error)
		UpdateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		// IncrementCompletedSessions bumps the counter with atomic SQL arithmetic.
		IncrementCompletedSessions(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, nc NewClass) (Class, error)
		Get(ctx context.Context, id string) (Class, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Class, error)
		Update(ctx context.Context, id string, uc UpdateClass) (Class, error)
		IncrementCompletedSessions(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	service struct {
		repo       Repository
		userSvc    user.Service
		catalogSvc catalog.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, catalogSvc catalog.Service) *service {
	return &service{
		repo:       repo,
		userSvc:    userSvc,
		catalogSvc: catalogSvc,
	}
}

func (svc *service) Create(ctx context.Context, nc NewClass) (Class, error) {
	teacher, err := svc.userSvc.GetByID(ctx, nc.TeacherID)
	if err != nil {
		return Class{}, errors.Wrap(err, "finding teacher")
	}
	if !teacher.IsTeacher() {
		return Class{}, core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "not a teacher"})
	}
	student, err := svc.userSvc.GetByID(ctx, nc.StudentID)
	if err != nil {
		return Class{}, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() {
		return Class{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "not a student"})
	}
	if _, err = svc.catalogSvc.Get(ctx, nc.SubjectID); err != nil {
		return Class{}, errors.Wrap(err, "finding subject")
	}

	now := time.Now().UTC()
	cls := Class{
		TeacherID:  nc.TeacherID,
		StudentID:  nc.StudentID,
		SubjectID:  nc.SubjectID,
		Title:      core.CleanString(nc.Title),
		HourlyRate: nc.HourlyRate,
		Currency:   core.CleanString(nc.Currency, true /* lower */),
		Status:     StatusActive,
		StartDate:  nc.StartDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *service) Get(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}

	if uc.Status != "" && uc.Status != cls.Status {
		if !CanTransition(cls.Status, uc.Status) {
			return Class{}, ErrInvalidTransition
		}
		cls.Status = uc.Status
	}
	if uc.Title != "" {
		cls.Title = core.CleanString(uc.Title)
	}
	if uc.HourlyRate != nil {
		cls.HourlyRate = *uc.HourlyRate
	}
	if uc.EndDate != nil {
		cls.EndDate = uc.EndDate
	}
	cls.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *service) IncrementCompletedSessions(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return svc.repo.IncrementCompletedSessions(ctx, id, exec...)
}
