package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/storage/database"
)

type classRow struct {
	ID                string    `db:"id"`
	TeacherID         string    `db:"teacher_id"`
	StudentID         string    `db:"student_id"`
	SubjectID         string    `db:"subject_id"`
	Title             string    `db:"title"`
	HourlyRate        float64   `db:"hourly_rate"`
	Currency          string    `db:"currency"`
	Status            string    `db:"status"`
	StartDate         time.Time `db:"start_date"`
	EndDate           null.Time `db:"end_date"`
	CompletedSessions int       `db:"completed_sessions"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r classRow) class() class.Class {
	return class.Class{
		ID:                r.ID,
		TeacherID:         r.TeacherID,
		StudentID:         r.StudentID,
		SubjectID:         r.SubjectID,
		Title:             r.Title,
		HourlyRate:        r.HourlyRate,
		Currency:          r.Currency,
		Status:            r.Status,
		StartDate:         r.StartDate,
		EndDate:           timePtr(r.EndDate.Time, r.EndDate.Valid),
		CompletedSessions: r.CompletedSessions,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const classColumns = "id, teacher_id, student_id, subject_id, title, hourly_rate, currency, status, " +
	"start_date, end_date, completed_sessions, created_at, updated_at"

type classRepository struct {
	db *database.DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *database.DB) *classRepository {
	return &classRepository{db: db}
}

func (repo classRepository) CreateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	query := `
		INSERT INTO classes (teacher_id, student_id, subject_id, title, hourly_rate, currency, status, start_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + classColumns

	var row classRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		cls.TeacherID, cls.StudentID, cls.SubjectID, cls.Title, cls.HourlyRate, cls.Currency,
		cls.Status, cls.StartDate.UTC(), cls.CreatedAt.UTC(), cls.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "creating class")
	}
	return row.class(), nil
}

func (repo classRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (class.Class, error) {
	query := "SELECT " + classColumns + " FROM classes WHERE id = $1"

	var row classRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return class.Class{}, class.ErrNotFound
		}
		return class.Class{}, errors.Wrap(err, "getting class")
	}
	return row.class(), nil
}

func (repo classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, exec ...core.DBExecutor) ([]class.Class, error) {
	query := "SELECT " + classColumns + " FROM classes"
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.TeacherID != "" {
			args = append(args, filter.TeacherID)
			conds = append(conds, fmt.Sprintf("teacher_id = $%d", len(args)))
		}
		if filter.StudentID != "" {
			args = append(args, filter.StudentID)
			conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var rows []classRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (repo classRepository) UpdateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	// completed_sessions is deliberately left out; it only moves through
	// IncrementCompletedSessions.
	query := `
		UPDATE classes
		SET title = $2, hourly_rate = $3, status = $4, end_date = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + classColumns

	var row classRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		cls.ID, cls.Title, cls.HourlyRate, cls.Status, null.TimeFromPtr(cls.EndDate), cls.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return class.Class{}, class.ErrNotFound
		}
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	return row.class(), nil
}

func (repo classRepository) IncrementCompletedSessions(ctx context.Context, id string, exec ...core.DBExecutor) error {
	query := "UPDATE classes SET completed_sessions = completed_sessions + 1, updated_at = now() WHERE id = $1"

	res, err := ext(repo.db, exec).ExecContext(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "incrementing completed sessions")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return class.ErrNotFound
	}
	return nil
}
