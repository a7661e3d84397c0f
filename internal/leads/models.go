package leads

import (
	"errors"
	"time"
)

// Lead is a contact an agent works through the dialer.
// AssignedTo holds the owning agent's user ID; empty means unassigned.
type Lead struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email,omitempty" db:"email"`
	Phone        string     `json:"phone" db:"phone"`
	Company      string     `json:"company,omitempty" db:"company"`
	AssignedTo   string     `json:"assignedTo,omitempty" db:"assigned_to"`
	Status       Status     `json:"status" db:"status"`
	Score        int        `json:"score" db:"score"`
	Notes        string     `json:"notes" db:"notes"`
	LastCallDate *time.Time `json:"lastCallDate,omitempty" db:"last_call_date"`
	NextFollowUp *time.Time `json:"nextFollowUp,omitempty" db:"next_follow_up"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

type Status string

const (
	StatusNew           Status = "new"
	StatusDialed        Status = "dialed"
	StatusNotInterested Status = "not_interested"
	StatusCallback      Status = "callback"
	StatusInterested    Status = "interested"
	StatusDNC           Status = "dnc"
	StatusConverted     Status = "converted"
	StatusInvalid       Status = "invalid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusDialed, StatusNotInterested, StatusCallback,
		StatusInterested, StatusDNC, StatusConverted, StatusInvalid:
		return true
	default:
		return false
	}
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	AssignedTo string
	Status     Status
}

// Patch carries the fields an update may change. Nil fields are left alone.
type Patch struct {
	Status       *Status
	Notes        *string
	LastCallDate *time.Time
}

func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Notes == nil && p.LastCallDate == nil
}

var (
	ErrNotFound        = errors.New("leads: not found")
	ErrForbidden       = errors.New("leads: not assigned to caller")
	ErrInvalidArgument = errors.New("leads: invalid argument")
)
