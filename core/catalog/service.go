package catalog

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var ErrNotFound = errors.New("subject not found")

type (
	Repository interface {
		CreateSubject(ctx context.Context, sub Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, onlyActive bool, exec ...core.DBExecutor) ([]Subject, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSubject) (Subject, error)
		Get(ctx context.Context, id string) (Subject, error)
		Query(ctx context.Context) ([]Subject, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ns NewSubject) (Subject, error) {
	sub := Subject{
		Name:      core.CleanString(ns.Name),
		Category:  core.CleanString(ns.Category, true /* lower */),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateSubject(ctx, sub)
}

func (svc *service) Get(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *service) Query(ctx context.Context) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, true /* onlyActive */)
}
