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
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

type userRow struct {
	ID           string      `db:"id"`
	Name         null.String `db:"name"`
	Username     string      `db:"username"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	IsActive     null.Bool   `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name.String,
		Username:     r.Username,
		Email:        r.Email,
		Role:         r.Role,
		IsActive:     r.IsActive.Ptr(),
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

const userColumns = "id, name, username, email, role, is_active, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db *database.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *database.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	query := "SELECT COUNT(*) FROM users WHERE (username = $1 OR email = $2)"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		placeholders := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			args = append(args, usr.ID)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += " AND id NOT IN (" + strings.Join(placeholders, ",") + ")"
	}

	var count int
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, args...).Scan(&count); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if count > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query := `
		INSERT INTO users (name, username, email, role, is_active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	var row userRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		null.NewString(usr.Name, usr.Name != ""), usr.Username, usr.Email, usr.Role,
		null.BoolFromPtr(usr.IsActive), usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		query string
		arg   interface{}
	)
	switch {
	case filter.ID != "":
		query = "SELECT " + userColumns + " FROM users WHERE id = $1"
		arg = filter.ID
	case filter.UsernameOrEmail != "":
		query = "SELECT " + userColumns + " FROM users WHERE username = $1 OR email = $1"
		arg = filter.UsernameOrEmail
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := ext(repo.db, exec).QueryRowxContext(ctx, query, arg).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := "SELECT " + userColumns + " FROM users"
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			n := fmt.Sprintf("$%d", len(args))
			conds = append(conds, "(name ILIKE "+n+" OR username ILIKE "+n+" OR email ILIKE "+n+")")
		}
		if filter.Role != "" {
			args = append(args, filter.Role)
			conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
		}
		if filter.IsActive != nil {
			args = append(args, *filter.IsActive)
			conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
		}
		if !filter.CreatedFrom.IsZero() {
			args = append(args, filter.CreatedFrom.UTC())
			conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
		}
		if !filter.CreatedTo.IsZero() {
			args = append(args, filter.CreatedTo.UTC())
			conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += orderBy(ordering, "created_at DESC")

	var rows []userRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query := `
		UPDATE users
		SET name = $2, username = $3, email = $4, role = $5, is_active = $6,
		    password_hash = $7, updated_at = $8, last_login = $9
		WHERE id = $1
		RETURNING ` + userColumns

	var row userRow
	err := ext(repo.db, exec).QueryRowxContext(
		ctx, query,
		usr.ID, null.NewString(usr.Name, usr.Name != ""), usr.Username, usr.Email, usr.Role,
		null.BoolFromPtr(usr.IsActive), usr.PasswordHash, usr.UpdatedAt.UTC(),
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return row.user(), nil
}
