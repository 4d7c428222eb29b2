package assignment

import "time"

// Assignment statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusClosed    = "closed"
)

// Difficulty levels
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Submission statuses
const (
	SubmissionSubmitted = "submitted"
	SubmissionGraded    = "graded"
	SubmissionReturned  = "returned"
	SubmissionLate      = "late"
)

// Assignment is teacher-authored work, optionally scoped to one class.
// A nil ClassID means "all the teacher's students".
type Assignment struct {
	ID              string     `json:"id"`
	TeacherID       string     `json:"teacher_id"`
	ClassID         *string    `json:"class_id"`
	SubjectID       string     `json:"subject_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	MaxPoints       int        `json:"max_points"`
	DueDate         *time.Time `json:"due_date"`
	IsPublished     bool       `json:"is_published"`
	Status          string     `json:"status"`
	DifficultyLevel string     `json:"difficulty_level"`
	CreatedAt       time.Time  `json:"created_at"` // UTC
	UpdatedAt       time.Time  `json:"updated_at"` // UTC
}

// Submission is a student's answer to an Assignment. MaxPoints and DueDate
// are copied off the assignment at submit time for historical fidelity.
type Submission struct {
	ID           string     `json:"id"`
	AssignmentID string     `json:"assignment_id"`
	StudentID    string     `json:"student_id"`
	ClassID      *string    `json:"class_id"`
	Content      string     `json:"content"`
	PointsEarned *float64   `json:"points_earned"`
	MaxPoints    int        `json:"max_points"`
	Grade        string     `json:"grade"`
	Feedback     string     `json:"feedback"`
	Status       string     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"` // UTC
	GradedAt     *time.Time `json:"graded_at"`
	DueDate      *time.Time `json:"due_date"`
	IsLate       bool       `json:"is_late"` // frozen at submit time
}

type NewAssignment struct {
	TeacherID       string     `json:"teacher_id" validate:"required"`
	ClassID         *string    `json:"class_id"`
	SubjectID       string     `json:"subject_id" validate:"required"`
	Title           string     `json:"title" validate:"required"`
	Description     string     `json:"description"`
	MaxPoints       int        `json:"max_points" validate:"required,gt=0"`
	DueDate         *time.Time `json:"due_date"`
	DifficultyLevel string     `json:"difficulty_level" validate:"required,oneof=easy medium hard"`
}

type NewSubmission struct {
	AssignmentID string  `json:"assignment_id" validate:"required"`
	StudentID    string  `json:"student_id" validate:"required"`
	ClassID      *string `json:"class_id"`
	Content      string  `json:"content" validate:"required"`
}

type GradeSubmission struct {
	PointsEarned float64 `json:"points_earned" validate:"gte=0"`
	Grade        string  `json:"grade"`
	Feedback     string  `json:"feedback"`
}

// Stats are derived by scanning the assignment's submissions; there are no
// materialized counters.
type Stats struct {
	TotalSubmissions  int      `json:"total_submissions"`
	GradedSubmissions int      `json:"graded_submissions"`
	LateSubmissions   int      `json:"late_submissions"`
	AverageScore      *float64 `json:"average_score"` // over graded-with-score only
}

// QueryFilter fields are applied with an AND operation.
type QueryFilter struct {
	TeacherID string
	ClassID   string
	SubjectID string
	Status    string
	Published *bool
}
