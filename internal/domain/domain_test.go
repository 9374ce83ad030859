package domain

import (
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestNewTaskDefaultsToOpenUnassigned(t *testing.T) {
	task, err := NewTask(TaskInput{
		ID:          "t1",
		ProjectID:   "p1",
		Title:       "Wire telemetry ingest",
		Description: "requires go and kafka experience",
	}, fixedNow())
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	if task.Status != StatusOpen {
		t.Fatalf("status = %q, want open", task.Status)
	}
	if task.AssigneeID != "" {
		t.Fatalf("assignee = %q, want empty", task.AssigneeID)
	}
	if task.Priority != PriorityMedium {
		t.Fatalf("priority = %q, want default medium", task.Priority)
	}
}

func TestNewTaskRejectsUnknownPriority(t *testing.T) {
	_, err := NewTask(TaskInput{ID: "t1", ProjectID: "p1", Title: "x", Priority: "urgent"}, fixedNow())
	if !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("error = %v, want ErrInvalidPriority", err)
	}
}

func TestTaskAssignCompleteRoundTrip(t *testing.T) {
	task, err := NewTask(TaskInput{ID: "t1", ProjectID: "p1", Title: "x", Priority: PriorityCritical}, fixedNow())
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}

	if err := task.Assign("e1", fixedNow()); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if task.Status != StatusInProgress || task.AssigneeID != "e1" {
		t.Fatalf("after assign: status=%q assignee=%q", task.Status, task.AssigneeID)
	}

	if err := task.Complete(fixedNow()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if task.Status != StatusDone {
		t.Fatalf("after complete: status=%q", task.Status)
	}
	// Done tasks keep their last assignee; history is not erased.
	if task.AssigneeID != "e1" {
		t.Fatalf("after complete: assignee=%q, want e1", task.AssigneeID)
	}
}

func TestTaskUnassignReturnsToOpen(t *testing.T) {
	task, _ := NewTask(TaskInput{ID: "t1", ProjectID: "p1", Title: "x"}, fixedNow())
	if err := task.Assign("e1", fixedNow()); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := task.Unassign(fixedNow()); err != nil {
		t.Fatalf("Unassign() error = %v", err)
	}
	if task.Status != StatusOpen || task.AssigneeID != "" {
		t.Fatalf("after unassign: status=%q assignee=%q", task.Status, task.AssigneeID)
	}
}

func TestTaskIllegalTransitions(t *testing.T) {
	open, _ := NewTask(TaskInput{ID: "t1", ProjectID: "p1", Title: "x"}, fixedNow())
	if err := open.Complete(fixedNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("open Complete() error = %v, want ErrInvalidTransition", err)
	}
	if err := open.Unassign(fixedNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("open Unassign() error = %v, want ErrInvalidTransition", err)
	}

	done := open
	_ = done.Assign("e1", fixedNow())
	_ = done.Complete(fixedNow())
	if err := done.Assign("e2", fixedNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("done Assign() error = %v, want ErrInvalidTransition", err)
	}
	if err := done.Complete(fixedNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("done Complete() error = %v, want ErrInvalidTransition", err)
	}
}

func TestCanTransitionMatrix(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusInProgress}:       true,
		{StatusInProgress, StatusDone}:       true,
		{StatusInProgress, StatusOpen}:       true,
		{StatusOpen, StatusDone}:             false,
		{StatusDone, StatusOpen}:             false,
		{StatusDone, StatusInProgress}:       false,
		{StatusOpen, StatusOpen}:             false,
		{StatusInProgress, StatusInProgress}: false,
	}
	for pair, want := range allowed {
		if got := CanTransition(pair[0], pair[1]); got != want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", pair[0], pair[1], got, want)
		}
	}
}

func TestTaskValidateRejectsTransientShapes(t *testing.T) {
	bad := Task{ID: "t1", ProjectID: "p1", Status: StatusOpen, AssigneeID: "e1"}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("open+assignee Validate() error = %v, want ErrInvalidStatus", err)
	}
	bad = Task{ID: "t1", ProjectID: "p1", Status: StatusInProgress}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("in_progress without assignee Validate() error = %v, want ErrInvalidStatus", err)
	}
}

func TestProjectArchiveIsTerminal(t *testing.T) {
	project, err := NewProject("p1", "Apollo", "payments revamp", fixedNow())
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if err := project.Archive(fixedNow()); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if !project.Archived || project.ArchivedAt == nil {
		t.Fatalf("archive did not stick: %+v", project)
	}
	if err := project.Archive(fixedNow()); !errors.Is(err, ErrAlreadyArchived) {
		t.Fatalf("second Archive() error = %v, want ErrAlreadyArchived", err)
	}
	if err := project.Rename("Artemis", "", fixedNow()); !errors.Is(err, ErrProjectArchived) {
		t.Fatalf("Rename() on archived error = %v, want ErrProjectArchived", err)
	}
}

func TestNewEngineerNormalizesEmail(t *testing.T) {
	eng, err := NewEngineer("e1", "Asha", "Asha@Example.COM", fixedNow())
	if err != nil {
		t.Fatalf("NewEngineer() error = %v", err)
	}
	if eng.Email != "asha@example.com" {
		t.Fatalf("email = %q", eng.Email)
	}
	if _, err := NewEngineer("e2", "Bo", "not-an-email", fixedNow()); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("error = %v, want ErrInvalidEmail", err)
	}
}

func TestAvailabilityFor(t *testing.T) {
	if AvailabilityFor(true) != AvailabilityBusy {
		t.Fatal("active task should derive busy")
	}
	if AvailabilityFor(false) != AvailabilityAvailable {
		t.Fatal("no active task should derive available")
	}
}
