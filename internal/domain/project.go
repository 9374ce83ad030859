package domain

import (
	"strings"
	"time"
)

// Project exclusively owns a collection of tasks. Archival is terminal:
// the flag moves false to true exactly once and is never reversed.
type Project struct {
	ID          string
	Name        string
	Description string
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  *time.Time
}

// NewProject constructs an active, empty project.
func NewProject(id, name, description string, now time.Time) (Project, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Project{}, ErrInvalidID
	}
	if name == "" {
		return Project{}, ErrInvalidName
	}

	return Project{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Rename updates name and description on an active project.
func (p *Project) Rename(name, description string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if p.Archived {
		return ErrProjectArchived
	}
	p.Name = name
	p.Description = strings.TrimSpace(description)
	p.UpdatedAt = now.UTC()
	return nil
}

// Archive marks the project archived. A second call fails rather than
// silently succeeding, so callers never believe they performed a cascading
// freeze that did nothing.
func (p *Project) Archive(now time.Time) error {
	if p.Archived {
		return ErrAlreadyArchived
	}
	ts := now.UTC()
	p.Archived = true
	p.ArchivedAt = &ts
	p.UpdatedAt = ts
	return nil
}
