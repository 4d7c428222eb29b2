package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryNotifications(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Notification, error)
		MarkRead(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Notify(ctx context.Context, userID, kind, title, body string) (Notification, error)
		QueryByUser(ctx context.Context, userID string) ([]Notification, error)
		MarkRead(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) Notify(ctx context.Context, userID, kind, title, body string) (Notification, error) {
	return svc.repo.CreateNotification(ctx, Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) QueryByUser(ctx context.Context, userID string) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, userID)
}

func (svc *service) MarkRead(ctx context.Context, id string) error {
	return svc.repo.MarkRead(ctx, id)
}
