package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := func(u user.User) bool {
		for _, x := range excludedUsers {
			if x.ID == u.ID {
				return true
			}
		}
		return false
	}
	for _, u := range repo.db.users {
		if (u.Username == username || u.Email == email) && !excluded(*u) {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		if filter != nil {
			if filter.Search != "" {
				s := strings.ToLower(filter.Search)
				if !(strings.Contains(strings.ToLower(u.Name), s) ||
					strings.Contains(strings.ToLower(u.Username), s) ||
					strings.Contains(strings.ToLower(u.Email), s)) {
					continue
				}
			}
			if filter.Role != "" && u.Role != filter.Role {
				continue
			}
			if filter.IsActive != nil && u.Active() != *filter.IsActive {
				continue
			}
			if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom) {
				continue
			}
			if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo) {
				continue
			}
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if u, ok := repo.db.users[filter.ID]; ok {
			return *u, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.users {
		if u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail {
			return *u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}
