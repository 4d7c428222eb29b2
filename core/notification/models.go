package notification

import "time"

// Kinds
const (
	KindSession = "session"
	KindGrading = "grading"
	KindPayment = "payment"
	KindGeneral = "general"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"` // UTC
}
