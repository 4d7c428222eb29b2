package session

import (
	"math"
	"time"
)

// Statuses
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// TokensPerHour is the student-facing token price of one session hour.
const TokensPerHour = 10

// transitions holds the allowed status changes.
// completed, cancelled and no_show are terminal.
var transitions = map[string][]string{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TokensForDuration computes the token charge for a session length.
// Fixed at scheduling time and never recomputed.
func TokensForDuration(minutes int) int {
	return int(math.Ceil(float64(minutes) / 60 * TokensPerHour))
}

// ClassSession is a single teaching session scheduled against a Class.
type ClassSession struct {
	ID              string     `json:"id"`
	ClassID         string     `json:"class_id"`
	TeacherID       string     `json:"teacher_id"`
	StudentID       string     `json:"student_id"`
	Title           string     `json:"title"`
	ScheduledStart  time.Time  `json:"scheduled_start"`
	ScheduledEnd    time.Time  `json:"scheduled_end"`
	ActualStart     *time.Time `json:"actual_start"`
	ActualEnd       *time.Time `json:"actual_end"`
	Status          string     `json:"status"`
	DurationMinutes int        `json:"duration_minutes"`
	Rate            float64    `json:"rate"` // hourly, copied from the class
	TokensCharged   int        `json:"tokens_charged"`

	// settlement stamps; set at most once each
	TokensDeductedAt  *time.Time `json:"tokens_deducted_at"`
	TokensCreditedAt  *time.Time `json:"tokens_credited_at"`
	TeacherEarningUSD *float64   `json:"teacher_earning_usd"`
	StudentCostUSD    *float64   `json:"student_cost_usd"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Settled reports whether the token settlement already ran.
func (s *ClassSession) Settled() bool {
	return s.TokensDeductedAt != nil
}

// ActualDurationHours returns the hours actually taught, falling back to
// the scheduled duration when actual timestamps are missing.
func (s *ClassSession) ActualDurationHours() float64 {
	if s.ActualStart != nil && s.ActualEnd != nil && s.ActualEnd.After(*s.ActualStart) {
		return s.ActualEnd.Sub(*s.ActualStart).Hours()
	}
	return float64(s.DurationMinutes) / 60
}

type NewSession struct {
	ClassID        string    `json:"class_id" validate:"required"`
	Title          string    `json:"title" validate:"required"`
	ScheduledStart time.Time `json:"scheduled_start" validate:"required"`
	ScheduledEnd   time.Time `json:"scheduled_end" validate:"required,gtfield=ScheduledStart"`
}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=scheduled in_progress completed cancelled no_show"`
}

// QueryFilter fields are applied with an AND operation.
type QueryFilter struct {
	ClassID   string
	TeacherID string
	StudentID string
	Status    string
}
