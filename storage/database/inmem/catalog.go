package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateSubject(ctx context.Context, sub catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub.ID = uuid.New().String()
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *catalogRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return *sub, nil
	}
	return catalog.Subject{}, catalog.ErrNotFound
}

func (repo *catalogRepository) QuerySubjects(ctx context.Context, onlyActive bool, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]catalog.Subject, 0, len(repo.db.subjects))
	for _, sub := range repo.db.subjects {
		if onlyActive && !sub.IsActive {
			continue
		}
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs, nil
}
