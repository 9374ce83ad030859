// Package board implements the optimistic-update protocol that keeps a
// drag-and-drop task view consistent with the authoritative store. A drag is
// staged in three steps: snapshot the view, apply the move speculatively,
// then commit on resolver success or restore the snapshot exactly on
// failure. Shared view state is never mutated before the outcome is known.
package board

import (
	"errors"
	"slices"
	"strings"

	"github.com/hylla/fordela/internal/domain"
)

var (
	// ErrUnknownTask means the dragged card is not in the current view.
	ErrUnknownTask = errors.New("task not on board")
	// ErrStaleDrag means the card is no longer in the drag's source column.
	ErrStaleDrag = errors.New("stale drag")
	// ErrAssigneeRequired rejects a drag into in_progress for a card with
	// no assignee: dragging cannot acquire an engineer, so assignment goes
	// through the explicit resolver path instead.
	ErrAssigneeRequired = errors.New("assignee required")
	// ErrIllegalMove rejects drags outside the lifecycle state machine.
	ErrIllegalMove = errors.New("illegal move")
)

// View is an immutable in-memory copy of the task list backing the board.
type View struct {
	tasks []domain.Task
}

// NewView captures its own copy of the task list.
func NewView(tasks []domain.Task) View {
	return View{tasks: append([]domain.Task(nil), tasks...)}
}

// Tasks returns a copy of the view's task list.
func (v View) Tasks() []domain.Task {
	return append([]domain.Task(nil), v.tasks...)
}

// Column returns the view's tasks with the given status, ordered by
// creation time then id for a stable render.
func (v View) Column(status domain.Status) []domain.Task {
	out := make([]domain.Task, 0)
	for _, t := range v.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Task) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return out
}

// Drag is one drop event: a card moved between status columns.
type Drag struct {
	TaskID string
	From   domain.Status
	To     domain.Status
}

// Staged is an optimistic move awaiting the resolver's verdict. It holds
// the pre-drag snapshot for rollback and the speculative view for display.
type Staged struct {
	snapshot View
	view     View
	drag     Drag
	noop     bool
}

// Stage validates a drag and applies it speculatively. Same-column drops
// stage as no-ops: reordering inside a column carries no status semantics.
// Validation failures happen before any speculative apply, so a rejected
// drag leaves nothing to roll back.
func Stage(view View, drag Drag) (Staged, error) {
	if drag.From == drag.To {
		return Staged{snapshot: view, view: view, drag: drag, noop: true}, nil
	}

	idx := -1
	for i, t := range view.tasks {
		if t.ID == drag.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Staged{}, ErrUnknownTask
	}
	task := view.tasks[idx]
	if task.Status != drag.From {
		return Staged{}, ErrStaleDrag
	}
	if !domain.CanTransition(drag.From, drag.To) {
		return Staged{}, ErrIllegalMove
	}
	if drag.To == domain.StatusInProgress && task.AssigneeID == "" {
		return Staged{}, ErrAssigneeRequired
	}

	// Speculative apply mirrors the resolver's semantics so a committed
	// view needs no re-fetch to agree with the store.
	task.Status = drag.To
	if drag.To == domain.StatusOpen {
		task.AssigneeID = ""
	}
	next := NewView(view.tasks)
	next.tasks[idx] = task
	return Staged{snapshot: view, view: next, drag: drag}, nil
}

// Drag returns the drag this stage was built from. Callers use it to
// match an in-flight mutation's reply to the stage it belongs to.
func (s Staged) Drag() Drag {
	return s.drag
}

// NoOp reports whether the stage was a same-column drop.
func (s Staged) NoOp() bool {
	return s.noop
}

// View returns the speculative view to display while the mutation is in
// flight.
func (s Staged) View() View {
	return s.view
}

// Commit replaces the speculative row with the store's authoritative one.
// The committed view is then correct without a full refresh.
func (s Staged) Commit(confirmed domain.Task) View {
	if s.noop {
		return s.view
	}
	next := NewView(s.view.tasks)
	for i, t := range next.tasks {
		if t.ID == confirmed.ID {
			next.tasks[i] = confirmed
			return next
		}
	}
	return next
}

// Rollback discards the speculative view and restores the pre-drag
// snapshot exactly. No partial merge of old and new state is permitted,
// and a failed drag is never retried here; the user re-attempts it.
func (s Staged) Rollback() View {
	return s.snapshot
}
