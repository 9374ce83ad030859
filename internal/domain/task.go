package domain

import (
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

var validStatuses = []Status{StatusOpen, StatusInProgress, StatusDone}

// IsValidStatus reports whether s is one of the three lifecycle states.
func IsValidStatus(s Status) bool {
	return slices.Contains(validStatuses, s)
}

// IsValidPriority reports whether p is a known priority level.
func IsValidPriority(p Priority) bool {
	return slices.Contains(validPriorities, p)
}

// Task is a unit of work owned by exactly one project. The description is
// opaque to this engine; skill extraction happens in an external service.
type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Priority    Priority
	Status      Status
	AssigneeID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TaskInput struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Priority    Priority
}

// NewTask constructs an open, unassigned task.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" {
		return Task{}, ErrInvalidID
	}
	if in.ProjectID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !IsValidPriority(in.Priority) {
		return Task{}, ErrInvalidPriority
	}

	return Task{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      StatusOpen,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// CanTransition reports whether the status change is allowed by the
// lifecycle state machine. It says nothing about engineer availability;
// that check belongs to the resolver, against the authoritative store.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusDone || to == StatusOpen
	default:
		return false
	}
}

// Assign moves an open task to in_progress with the given assignee.
// Assignment and progression happen together: an open task never carries
// an assignee.
func (t *Task) Assign(engineerID string, now time.Time) error {
	engineerID = strings.TrimSpace(engineerID)
	if engineerID == "" {
		return ErrInvalidEngineerID
	}
	if t.Status != StatusOpen {
		return ErrInvalidTransition
	}
	t.AssigneeID = engineerID
	t.Status = StatusInProgress
	t.UpdatedAt = now.UTC()
	return nil
}

// Complete moves an in_progress task to done. The assignee is carried over
// so history is not erased.
func (t *Task) Complete(now time.Time) error {
	if t.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	t.Status = StatusDone
	t.UpdatedAt = now.UTC()
	return nil
}

// Unassign returns an in_progress task to open and clears the assignee.
func (t *Task) Unassign(now time.Time) error {
	if t.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	t.AssigneeID = ""
	t.Status = StatusOpen
	t.UpdatedAt = now.UTC()
	return nil
}

// UpdateDetails changes title, description, and priority without touching
// the lifecycle state.
func (t *Task) UpdateDetails(title, description string, priority Priority, now time.Time) error {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return ErrInvalidTitle
	}
	if !IsValidPriority(priority) {
		return ErrInvalidPriority
	}
	t.Title = title
	t.Description = description
	t.Priority = priority
	t.UpdatedAt = now.UTC()
	return nil
}

// Validate checks the structural invariants that must hold for any stored
// task: in_progress implies an assignee, open implies none.
func (t Task) Validate() error {
	if !IsValidStatus(t.Status) {
		return ErrInvalidStatus
	}
	if t.Status == StatusOpen && t.AssigneeID != "" {
		return ErrInvalidStatus
	}
	if t.Status == StatusInProgress && t.AssigneeID == "" {
		return ErrInvalidStatus
	}
	return nil
}
