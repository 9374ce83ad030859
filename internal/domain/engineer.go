package domain

import (
	"strings"
	"time"
)

// Availability is a derived attribute: busy if and only if the engineer is
// the assignee of at least one in_progress task. It is never set directly.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
)

// AvailabilityFor maps the single-active-task check onto the two states.
func AvailabilityFor(hasActiveTask bool) Availability {
	if hasActiveTask {
		return AvailabilityBusy
	}
	return AvailabilityAvailable
}

type Engineer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewEngineer(id, name, email string, now time.Time) (Engineer, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if id == "" {
		return Engineer{}, ErrInvalidID
	}
	if name == "" {
		return Engineer{}, ErrInvalidName
	}
	if email == "" || !strings.Contains(email, "@") {
		return Engineer{}, ErrInvalidEmail
	}

	return Engineer{
		ID:        id,
		Name:      name,
		Email:     email,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}
