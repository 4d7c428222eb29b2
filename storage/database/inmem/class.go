package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db}
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (class.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return *cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, exec ...core.DBExecutor) ([]class.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		if filter != nil {
			if filter.TeacherID != "" && cls.TeacherID != filter.TeacherID {
				continue
			}
			if filter.StudentID != "" && cls.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && cls.Status != filter.Status {
				continue
			}
		}
		classes = append(classes, *cls)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].CreatedAt.After(classes[j].CreatedAt) })
	return classes, nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	curr, ok := repo.db.classes[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	cls.CompletedSessions = curr.CompletedSessions // only IncrementCompletedSessions moves the counter
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) IncrementCompletedSessions(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cls, ok := repo.db.classes[id]
	if !ok {
		return class.ErrNotFound
	}
	cls.CompletedSessions++
	return nil
}
