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
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/storage/database"
)

type sessionRow struct {
	ID                string       `db:"id"`
	ClassID           string       `db:"class_id"`
	TeacherID         string       `db:"teacher_id"`
	StudentID         string       `db:"student_id"`
	Title             string       `db:"title"`
	ScheduledStart    time.Time    `db:"scheduled_start"`
	ScheduledEnd      time.Time    `db:"scheduled_end"`
	ActualStart       null.Time    `db:"actual_start"`
	ActualEnd         null.Time    `db:"actual_end"`
	Status            string       `db:"status"`
	DurationMinutes   int          `db:"duration_minutes"`
	Rate              float64      `db:"rate"`
	TokensCharged     int          `db:"tokens_charged"`
	TokensDeductedAt  null.Time    `db:"tokens_deducted_at"`
	TokensCreditedAt  null.Time    `db:"tokens_credited_at"`
	TeacherEarningUSD null.Float64 `db:"teacher_earning_usd"`
	StudentCostUSD    null.Float64 `db:"student_cost_usd"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

func (r sessionRow) session() session.ClassSession {
	return session.ClassSession{
		ID:                r.ID,
		ClassID:           r.ClassID,
		TeacherID:         r.TeacherID,
		StudentID:         r.StudentID,
		Title:             r.Title,
		ScheduledStart:    r.ScheduledStart,
		ScheduledEnd:      r.ScheduledEnd,
		ActualStart:       timePtr(r.ActualStart.Time, r.ActualStart.Valid),
		ActualEnd:         timePtr(r.ActualEnd.Time, r.ActualEnd.Valid),
		Status:            r.Status,
		DurationMinutes:   r.DurationMinutes,
		Rate:              r.Rate,
		TokensCharged:     r.TokensCharged,
		TokensDeductedAt:  timePtr(r.TokensDeductedAt.Time, r.TokensDeductedAt.Valid),
		TokensCreditedAt:  timePtr(r.TokensCreditedAt.Time, r.TokensCreditedAt.Valid),
		TeacherEarningUSD: r.TeacherEarningUSD.Ptr(),
		StudentCostUSD:    r.StudentCostUSD.Ptr(),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const sessionColumns = "id, class_id, teacher_id, student_id, title, scheduled_start, scheduled_end, " +
	"actual_start, actual_end, status, duration_minutes, rate, tokens_charged, " +
	"tokens_deducted_at, tokens_credited_at, teacher_earning_usd, student_cost_usd, created_at, updated_at"

type sessionRepository struct {
	db *database.DB
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *database.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo sessionRepository) CreateSession(ctx context.Context, ses session.ClassSession, exec ...core.DBExecutor) (session.ClassSession, error) {
	query := `
		INSERT INTO class_sessions (class_id, teacher_id, student_id, title, scheduled_start, scheduled_end,
		                            status, duration_minutes, rate, tokens_charged, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + sessionColumns

	var row sessionRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		ses.ClassID, ses.TeacherID, ses.StudentID, ses.Title, ses.ScheduledStart.UTC(), ses.ScheduledEnd.UTC(),
		ses.Status, ses.DurationMinutes, ses.Rate, ses.TokensCharged, ses.CreatedAt.UTC(), ses.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return session.ClassSession{}, errors.Wrap(err, "creating session")
	}
	return row.session(), nil
}

func (repo sessionRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (session.ClassSession, error) {
	query := "SELECT " + sessionColumns + " FROM class_sessions WHERE id = $1"

	var row sessionRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return session.ClassSession{}, session.ErrNotFound
		}
		return session.ClassSession{}, errors.Wrap(err, "getting session")
	}
	return row.session(), nil
}

func (repo sessionRepository) QuerySessions(ctx context.Context, filter *session.QueryFilter, exec ...core.DBExecutor) ([]session.ClassSession, error) {
	query := "SELECT " + sessionColumns + " FROM class_sessions"
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.ClassID != "" {
			args = append(args, filter.ClassID)
			conds = append(conds, fmt.Sprintf("class_id = $%d", len(args)))
		}
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
	query += " ORDER BY scheduled_start DESC"

	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]session.ClassSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.session())
	}
	return sessions, nil
}

func (repo sessionRepository) UpdateSession(ctx context.Context, ses session.ClassSession, exec ...core.DBExecutor) (session.ClassSession, error) {
	// settlement columns only move through StampSettlement
	query := `
		UPDATE class_sessions
		SET title = $2, actual_start = $3, actual_end = $4, status = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + sessionColumns

	var row sessionRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		ses.ID, ses.Title, null.TimeFromPtr(ses.ActualStart), null.TimeFromPtr(ses.ActualEnd),
		ses.Status, ses.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return session.ClassSession{}, session.ErrNotFound
		}
		return session.ClassSession{}, errors.Wrap(err, "updating session")
	}
	return row.session(), nil
}

func (repo sessionRepository) StampSettlement(ctx context.Context, id string, at time.Time, earningUSD, costUSD float64, exec ...core.DBExecutor) (bool, error) {
	query := `
		UPDATE class_sessions
		SET tokens_deducted_at = $2, tokens_credited_at = $2, teacher_earning_usd = $3, student_cost_usd = $4, updated_at = $2
		WHERE id = $1 AND tokens_deducted_at IS NULL`

	res, err := ext(repo.db, exec).ExecContext(ctx, query, id, at.UTC(), earningUSD, costUSD)
	if err != nil {
		return false, errors.Wrap(err, "stamping settlement")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "stamping settlement")
	}
	return n == 1, nil
}
