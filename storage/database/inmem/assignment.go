package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter *assignment.QueryFilter, exec ...core.DBExecutor) ([]assignment.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	assignments := make([]assignment.Assignment, 0, len(repo.db.assignments))
	for _, a := range repo.db.assignments {
		if filter != nil {
			if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
				continue
			}
			if filter.ClassID != "" && (a.ClassID == nil || *a.ClassID != filter.ClassID) {
				continue
			}
			if filter.SubjectID != "" && a.SubjectID != filter.SubjectID {
				continue
			}
			if filter.Status != "" && a.Status != filter.Status {
				continue
			}
			if filter.Published != nil && a.IsPublished != *filter.Published {
				continue
			}
		}
		assignments = append(assignments, *a)
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].CreatedAt.After(assignments[j].CreatedAt) })
	return assignments, nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assignments[a.ID]; !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.submissions {
		if s.AssignmentID == sub.AssignmentID && s.StudentID == sub.StudentID {
			return assignment.Submission{}, assignment.ErrAlreadySubmitted
		}
	}
	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *assignmentRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return *sub, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) GetStudentSubmission(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.AssignmentID == assignmentID && sub.StudentID == studentID {
			return *sub, nil
		}
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) ([]assignment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]assignment.Submission, 0, len(repo.db.submissions))
	for _, sub := range repo.db.submissions {
		if assignmentID != "" && sub.AssignmentID != assignmentID {
			continue
		}
		if studentID != "" && sub.StudentID != studentID {
			continue
		}
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}

func (repo *assignmentRepository) UpdateSubmission(ctx context.Context, sub assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.submissions[sub.ID]; !ok {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}
