package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/catalog"
	"github.com/trezcool/darasa/storage/database"
)

type subjectRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

func (r subjectRow) subject() catalog.Subject {
	return catalog.Subject{
		ID:        r.ID,
		Name:      r.Name,
		Category:  r.Category,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
}

const subjectColumns = "id, name, category, is_active, created_at"

type subjectRepository struct {
	db *database.DB
}

var _ catalog.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(db *database.DB) *subjectRepository {
	return &subjectRepository{db: db}
}

func (repo subjectRepository) CreateSubject(ctx context.Context, sub catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	query := `
		INSERT INTO subjects (name, category, is_active, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + subjectColumns

	var row subjectRow
	err := ext(repo.db, exec).QueryRowxContext(ctx, query, sub.Name, sub.Category, sub.IsActive, sub.CreatedAt.UTC()).StructScan(&row)
	if err != nil {
		return catalog.Subject{}, errors.Wrap(err, "creating subject")
	}
	return row.subject(), nil
}

func (repo subjectRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects WHERE id = $1"

	var row subjectRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return catalog.Subject{}, catalog.ErrNotFound
		}
		return catalog.Subject{}, errors.Wrap(err, "getting subject")
	}
	return row.subject(), nil
}

func (repo subjectRepository) QuerySubjects(ctx context.Context, onlyActive bool, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects"
	if onlyActive {
		query += " WHERE is_active"
	}
	query += " ORDER BY category, name"

	var rows []subjectRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]catalog.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.subject())
	}
	return subjects, nil
}
