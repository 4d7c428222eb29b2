package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/storage/database"
)

// pq unique_violation
const pqUniqueViolation = "23505"

type assignmentRow struct {
	ID              string      `db:"id"`
	TeacherID       string      `db:"teacher_id"`
	ClassID         null.String `db:"class_id"`
	SubjectID       string      `db:"subject_id"`
	Title           string      `db:"title"`
	Description     string      `db:"description"`
	MaxPoints       int         `db:"max_points"`
	DueDate         null.Time   `db:"due_date"`
	IsPublished     bool        `db:"is_published"`
	Status          string      `db:"status"`
	DifficultyLevel string      `db:"difficulty_level"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (r assignmentRow) assignment() assignment.Assignment {
	return assignment.Assignment{
		ID:              r.ID,
		TeacherID:       r.TeacherID,
		ClassID:         r.ClassID.Ptr(),
		SubjectID:       r.SubjectID,
		Title:           r.Title,
		Description:     r.Description,
		MaxPoints:       r.MaxPoints,
		DueDate:         timePtr(r.DueDate.Time, r.DueDate.Valid),
		IsPublished:     r.IsPublished,
		Status:          r.Status,
		DifficultyLevel: r.DifficultyLevel,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type submissionRow struct {
	ID           string       `db:"id"`
	AssignmentID string       `db:"assignment_id"`
	StudentID    string       `db:"student_id"`
	ClassID      null.String  `db:"class_id"`
	Content      string       `db:"content"`
	PointsEarned null.Float64 `db:"points_earned"`
	MaxPoints    int          `db:"max_points"`
	Grade        string       `db:"grade"`
	Feedback     string       `db:"feedback"`
	Status       string       `db:"status"`
	SubmittedAt  time.Time    `db:"submitted_at"`
	GradedAt     null.Time    `db:"graded_at"`
	DueDate      null.Time    `db:"due_date"`
	IsLate       bool         `db:"is_late"`
}

func (r submissionRow) submission() assignment.Submission {
	return assignment.Submission{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		StudentID:    r.StudentID,
		ClassID:      r.ClassID.Ptr(),
		Content:      r.Content,
		PointsEarned: r.PointsEarned.Ptr(),
		MaxPoints:    r.MaxPoints,
		Grade:        r.Grade,
		Feedback:     r.Feedback,
		Status:       r.Status,
		SubmittedAt:  r.SubmittedAt,
		GradedAt:     timePtr(r.GradedAt.Time, r.GradedAt.Valid),
		DueDate:      timePtr(r.DueDate.Time, r.DueDate.Valid),
		IsLate:       r.IsLate,
	}
}

const assignmentColumns = "id, teacher_id, class_id, subject_id, title, description, max_points, due_date, " +
	"is_published, status, difficulty_level, created_at, updated_at"

const submissionColumns = "id, assignment_id, student_id, class_id, content, points_earned, max_points, " +
	"grade, feedback, status, submitted_at, graded_at, due_date, is_late"

type assignmentRepository struct {
	db *database.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *database.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	query := `
		INSERT INTO assignments (teacher_id, class_id, subject_id, title, description, max_points, due_date,
		                         is_published, status, difficulty_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + assignmentColumns

	var row assignmentRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		a.TeacherID, null.StringFromPtr(a.ClassID), a.SubjectID, a.Title, a.Description, a.MaxPoints,
		null.TimeFromPtr(a.DueDate), a.IsPublished, a.Status, a.DifficultyLevel, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "creating assignment")
	}
	return row.assignment(), nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE id = $1"

	var row assignmentRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return assignment.Assignment{}, assignment.ErrNotFound
		}
		return assignment.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.assignment(), nil
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, filter *assignment.QueryFilter, exec ...core.DBExecutor) ([]assignment.Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments"
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.TeacherID != "" {
			args = append(args, filter.TeacherID)
			conds = append(conds, fmt.Sprintf("teacher_id = $%d", len(args)))
		}
		if filter.ClassID != "" {
			args = append(args, filter.ClassID)
			conds = append(conds, fmt.Sprintf("class_id = $%d", len(args)))
		}
		if filter.SubjectID != "" {
			args = append(args, filter.SubjectID)
			conds = append(conds, fmt.Sprintf("subject_id = $%d", len(args)))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
		}
		if filter.Published != nil {
			args = append(args, *filter.Published)
			conds = append(conds, fmt.Sprintf("is_published = $%d", len(args)))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var rows []assignmentRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.assignment())
	}
	return assignments, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	query := `
		UPDATE assignments
		SET title = $2, description = $3, max_points = $4, due_date = $5, is_published = $6,
		    status = $7, difficulty_level = $8, updated_at = $9
		WHERE id = $1
		RETURNING ` + assignmentColumns

	var row assignmentRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		a.ID, a.Title, a.Description, a.MaxPoints, null.TimeFromPtr(a.DueDate), a.IsPublished,
		a.Status, a.DifficultyLevel, a.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return assignment.Assignment{}, assignment.ErrNotFound
		}
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	return row.assignment(), nil
}

func (repo assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	query := `
		INSERT INTO submissions (assignment_id, student_id, class_id, content, max_points, grade, feedback,
		                         status, submitted_at, due_date, is_late)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + submissionColumns

	var row submissionRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		sub.AssignmentID, sub.StudentID, null.StringFromPtr(sub.ClassID), sub.Content, sub.MaxPoints,
		sub.Grade, sub.Feedback, sub.Status, sub.SubmittedAt.UTC(), null.TimeFromPtr(sub.DueDate), sub.IsLate,
	).StructScan(&row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
			return assignment.Submission{}, assignment.ErrAlreadySubmitted
		}
		return assignment.Submission{}, errors.Wrap(err, "creating submission")
	}
	return row.submission(), nil
}

func (repo assignmentRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = $1"

	var row submissionRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return assignment.Submission{}, assignment.ErrSubmissionNotFound
		}
		return assignment.Submission{}, errors.Wrap(err, "getting submission")
	}
	return row.submission(), nil
}

func (repo assignmentRepository) GetStudentSubmission(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) (assignment.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE assignment_id = $1 AND student_id = $2"

	var row submissionRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, assignmentID, studentID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return assignment.Submission{}, assignment.ErrSubmissionNotFound
		}
		return assignment.Submission{}, errors.Wrap(err, "getting student submission")
	}
	return row.submission(), nil
}

func (repo assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) ([]assignment.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions"
	var (
		conds []string
		args  []interface{}
	)
	if assignmentID != "" {
		args = append(args, assignmentID)
		conds = append(conds, fmt.Sprintf("assignment_id = $%d", len(args)))
	}
	if studentID != "" {
		args = append(args, studentID)
		conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY submitted_at DESC"

	var rows []submissionRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]assignment.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs, nil
}

func (repo assignmentRepository) UpdateSubmission(ctx context.Context, sub assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	query := `
		UPDATE submissions
		SET content = $2, points_earned = $3, grade = $4, feedback = $5, status = $6, graded_at = $7
		WHERE id = $1
		RETURNING ` + submissionColumns

	var row submissionRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		sub.ID, sub.Content, null.Float64FromPtr(sub.PointsEarned), sub.Grade, sub.Feedback,
		sub.Status, null.TimeFromPtr(sub.GradedAt),
	).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return assignment.Submission{}, assignment.ErrSubmissionNotFound
		}
		return assignment.Submission{}, errors.Wrap(err, "updating submission")
	}
	return row.submission(), nil
}
