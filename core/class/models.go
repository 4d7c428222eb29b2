package class

import "time"

// Statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusPaused    = "paused"
	StatusCancelled = "cancelled"
)

// transitions holds the allowed status changes.
// completed and cancelled are terminal; classes are never hard-deleted.
var transitions = map[string][]string{
	StatusActive: {StatusCompleted, StatusPaused, StatusCancelled},
	StatusPaused: {StatusActive, StatusCancelled},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Class binds a teacher, a student and a subject at an hourly rate.
type Class struct {
	ID                string     `json:"id"`
	TeacherID         string     `json:"teacher_id"`
	StudentID         string     `json:"student_id"`
	SubjectID         string     `json:"subject_id"`
	Title             string     `json:"title"`
	HourlyRate        float64    `json:"hourly_rate"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	CompletedSessions int        `json:"completed_sessions"` // monotonically non-decreasing
	CreatedAt         time.Time  `json:"created_at"`         // UTC
	UpdatedAt         time.Time  `json:"updated_at"`         // UTC
}

type NewClass struct {
	TeacherID  string    `json:"teacher_id" validate:"required"`
	StudentID  string    `json:"student_id" validate:"required"`
	SubjectID  string    `json:"subject_id" validate:"required"`
	Title      string    `json:"title" validate:"required"`
	HourlyRate float64   `json:"hourly_rate" validate:"required,gt=0"`
	Currency   string    `json:"currency" validate:"required,currency"`
	StartDate  time.Time `json:"start_date" validate:"required"`
}

type UpdateClass struct {
	Title      string     `json:"title"`
	HourlyRate *float64   `json:"hourly_rate" validate:"omitempty,gt=0"`
	Status     string     `json:"status" validate:"omitempty,oneof=active completed paused cancelled"`
	EndDate    *time.Time `json:"end_date"`
}

// QueryFilter fields are applied with an AND operation.
type QueryFilter struct {
	TeacherID string
	StudentID string
	Status    string
}
