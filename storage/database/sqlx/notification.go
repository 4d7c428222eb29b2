package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/storage/database"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

const notificationColumns = "id, user_id, kind, title, body, is_read, created_at"

type notificationRepository struct {
	db *database.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *database.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	query := `
		INSERT INTO notifications (user_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + notificationColumns

	var row notificationRow
	err := ext(repo.db, exec).QueryRowxContext(ctx, query, n.UserID, n.Kind, n.Title, n.Body, n.CreatedAt.UTC()).StructScan(&row)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "creating notification")
	}
	return row.notification(), nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notification.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = $1 ORDER BY created_at DESC"

	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.notification())
	}
	return notifs, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := ext(repo.db, exec).ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
