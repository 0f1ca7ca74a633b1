package entities

import (
	"time"
)

// SearchEvent represents a single flight search made by a user, possibly anonymous.
type SearchEvent struct {
	ID          string     `json:"id" db:"id"`
	Origin      string     `json:"origin" db:"origin"`
	Destination string     `json:"destination" db:"destination"`
	DepartDate  time.Time  `json:"depart_date" db:"depart_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty" db:"return_date"`
	UserID      *string    `json:"user_id,omitempty" db:"user_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// SavedSearch is a search a user persisted as a price alert. It signals stronger
// booking intent than a one-off SearchEvent.
type SavedSearch struct {
	ID          string     `json:"id" db:"id"`
	Origin      string     `json:"origin" db:"origin"`
	Destination string     `json:"destination" db:"destination"`
	DepartDate  time.Time  `json:"depart_date" db:"depart_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty" db:"return_date"`
	UserID      string     `json:"user_id" db:"user_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
