package catalog

import "time"

// Subject is read-only reference data consumed by classes and assignments.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewSubject struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category" validate:"required"`
}
