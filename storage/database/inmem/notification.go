package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n.ID = uuid.New().String()
	repo.db.notifications[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	notifs := make([]notification.Notification, 0, len(repo.db.notifications))
	for _, n := range repo.db.notifications {
		if userID != "" && n.UserID != userID {
			continue
		}
		notifs = append(notifs, *n)
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].CreatedAt.After(notifs[j].CreatedAt) })
	return notifs, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.IsRead = true
	return nil
}
