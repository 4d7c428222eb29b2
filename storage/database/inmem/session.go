package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, ses session.ClassSession, exec ...core.DBExecutor) (session.ClassSession, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ses.ID = uuid.New().String()
	repo.db.sessions[ses.ID] = &ses
	return ses, nil
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (session.ClassSession, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if ses, ok := repo.db.sessions[id]; ok {
		return *ses, nil
	}
	return session.ClassSession{}, session.ErrNotFound
}

func (repo *sessionRepository) QuerySessions(ctx context.Context, filter *session.QueryFilter, exec ...core.DBExecutor) ([]session.ClassSession, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sessions := make([]session.ClassSession, 0, len(repo.db.sessions))
	for _, ses := range repo.db.sessions {
		if filter != nil {
			if filter.ClassID != "" && ses.ClassID != filter.ClassID {
				continue
			}
			if filter.TeacherID != "" && ses.TeacherID != filter.TeacherID {
				continue
			}
			if filter.StudentID != "" && ses.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && ses.Status != filter.Status {
				continue
			}
		}
		sessions = append(sessions, *ses)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ScheduledStart.Before(sessions[j].ScheduledStart)
	})
	return sessions, nil
}

func (repo *sessionRepository) UpdateSession(ctx context.Context, ses session.ClassSession, exec ...core.DBExecutor) (session.ClassSession, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	curr, ok := repo.db.sessions[ses.ID]
	if !ok {
		return session.ClassSession{}, session.ErrNotFound
	}
	// settlement stamps only move through StampSettlement
	ses.TokensDeductedAt = curr.TokensDeductedAt
	ses.TokensCreditedAt = curr.TokensCreditedAt
	ses.TeacherEarningUSD = curr.TeacherEarningUSD
	ses.StudentCostUSD = curr.StudentCostUSD
	repo.db.sessions[ses.ID] = &ses
	return ses, nil
}

func (repo *sessionRepository) StampSettlement(ctx context.Context, id string, at time.Time, earningUSD, costUSD float64, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ses, ok := repo.db.sessions[id]
	if !ok {
		return false, session.ErrNotFound
	}
	if ses.TokensDeductedAt != nil {
		return false, nil
	}
	ses.TokensDeductedAt = &at
	ses.TokensCreditedAt = &at
	ses.TeacherEarningUSD = &earningUSD
	ses.StudentCostUSD = &costUSD
	ses.UpdatedAt = at
	return true, nil
}
