package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/fordela/internal/domain"
)

// DefaultRecommendationLimit and MaxRecommendationLimit bound candidate
// lists from the scoring oracle. The hard cap applies regardless of what a
// caller asks for.
const (
	DefaultRecommendationLimit = 5
	MaxRecommendationLimit     = 50
)

// Pagination bounds for the outward listing surfaces.
const (
	defaultProjectPageSize = 10
	maxProjectPageSize     = 50
	defaultTaskPageSize    = 100
	maxTaskPageSize        = 100
	defaultHistoryPageSize = 10
	maxHistoryPageSize     = 50
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service is the task lifecycle and assignment engine: it owns every write
// to the task store, enforces the transition rules and the
// single-active-task invariant, and runs project archival cascades.
// Reads and recommendations run with unlimited concurrency; writes
// serialize per task id through the mutation guard.
type Service struct {
	repo    Repository
	gateway RecommendationGateway
	guard   *mutationGuard
	idGen   IDGenerator
	clock   Clock
}

// NewService constructs the engine. The gateway may be nil; recommendation
// requests then fail as unavailable while direct assignment keeps working.
func NewService(repo Repository, gateway RecommendationGateway, idGen IDGenerator, clock Clock) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		guard:   newMutationGuard(),
		idGen:   idGen,
		clock:   clock,
	}
}

// CreateProject creates an active, empty project.
func (s *Service) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	project, err := domain.NewProject(s.idGen(), name, description, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// GetProject returns one project by id.
func (s *Service) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return s.repo.GetProject(ctx, strings.TrimSpace(projectID))
}

// ProjectSummary pairs a project with its task counts so list views render
// progress without a per-row query.
type ProjectSummary struct {
	Project        domain.Project
	TotalTasks     int
	CompletedTasks int
}

// ListProjectSummaries returns one page of projects filtered by archive
// state, newest first, each with task counts.
func (s *Service) ListProjectSummaries(ctx context.Context, archived bool, req PageRequest) (Page[ProjectSummary], error) {
	req, err := req.normalize(defaultProjectPageSize, maxProjectPageSize)
	if err != nil {
		return Page[ProjectSummary]{}, err
	}
	projects, err := s.repo.ListProjects(ctx, true)
	if err != nil {
		return Page[ProjectSummary]{}, err
	}

	filtered := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if p.Archived == archived {
			filtered = append(filtered, p)
		}
	}
	slices.SortFunc(filtered, func(a, b domain.Project) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	page := paginate(filtered, req)
	out := Page[ProjectSummary]{TotalCount: page.TotalCount, Items: make([]ProjectSummary, 0, len(page.Items))}
	for _, p := range page.Items {
		tasks, listErr := s.repo.ListTasks(ctx, p.ID)
		if listErr != nil {
			return Page[ProjectSummary]{}, listErr
		}
		summary := ProjectSummary{Project: p, TotalTasks: len(tasks)}
		for _, t := range tasks {
			if t.Status == domain.StatusDone {
				summary.CompletedTasks++
			}
		}
		out.Items = append(out.Items, summary)
	}
	return out, nil
}

// UpdateProject renames an active project.
func (s *Service) UpdateProject(ctx context.Context, projectID, name, description string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.Rename(name, description, s.clock()); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ArchiveResult reports how many child tasks an archival froze.
type ArchiveResult struct {
	ArchivedTaskCount int
}

// ArchiveProject sets the archived flag and freezes every child task in one
// logical operation. The project claim refuses while any child task
// mutation is in flight and blocks new ones from starting, so no task write
// can land after the freeze begins, even for a task created after the
// archival was requested. Archiving twice fails with
// domain.ErrAlreadyArchived.
func (s *Service) ArchiveProject(ctx context.Context, projectID string) (ArchiveResult, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ArchiveResult{}, domain.ErrInvalidID
	}
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return ArchiveResult{}, err
	}
	if project.Archived {
		return ArchiveResult{}, domain.ErrAlreadyArchived
	}

	if err := s.guard.acquireProject(projectID); err != nil {
		return ArchiveResult{}, err
	}
	defer s.guard.releaseProject(projectID)

	// Re-read under the claim: another archival may have won the race
	// between the first read and the acquire.
	project, err = s.repo.GetProject(ctx, projectID)
	if err != nil {
		return ArchiveResult{}, err
	}
	// The child list is read under the claim too. An earlier read could
	// miss a task whose creation was in flight when the archival started.
	tasks, err := s.repo.ListTasks(ctx, projectID)
	if err != nil {
		return ArchiveResult{}, err
	}
	if err := project.Archive(s.clock()); err != nil {
		return ArchiveResult{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return ArchiveResult{}, fmt.Errorf("persist archive: %w", err)
	}
	return ArchiveResult{ArchivedTaskCount: len(tasks)}, nil
}

// CreateEngineer registers a team member.
func (s *Service) CreateEngineer(ctx context.Context, name, email string) (domain.Engineer, error) {
	engineer, err := domain.NewEngineer(s.idGen(), name, email, s.clock())
	if err != nil {
		return domain.Engineer{}, err
	}
	if err := s.repo.CreateEngineer(ctx, engineer); err != nil {
		return domain.Engineer{}, err
	}
	return engineer, nil
}

// EngineerStatus pairs an engineer with derived availability.
type EngineerStatus struct {
	Engineer     domain.Engineer
	Availability domain.Availability
}

// ListEngineers returns the team with derived availability, name ascending.
func (s *Service) ListEngineers(ctx context.Context) ([]EngineerStatus, error) {
	engineers, err := s.repo.ListEngineers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]EngineerStatus, 0, len(engineers))
	for _, e := range engineers {
		busy, availErr := s.engineerHasActiveTask(ctx, e.ID)
		if availErr != nil {
			return nil, availErr
		}
		out = append(out, EngineerStatus{Engineer: e, Availability: domain.AvailabilityFor(busy)})
	}
	slices.SortFunc(out, func(a, b EngineerStatus) int {
		if a.Engineer.Name == b.Engineer.Name {
			return strings.Compare(a.Engineer.ID, b.Engineer.ID)
		}
		return strings.Compare(a.Engineer.Name, b.Engineer.Name)
	})
	return out, nil
}

// EngineerAvailability derives one engineer's availability from the store.
func (s *Service) EngineerAvailability(ctx context.Context, engineerID string) (domain.Availability, error) {
	if _, err := s.repo.GetEngineer(ctx, strings.TrimSpace(engineerID)); err != nil {
		return "", err
	}
	busy, err := s.engineerHasActiveTask(ctx, engineerID)
	if err != nil {
		return "", err
	}
	return domain.AvailabilityFor(busy), nil
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ProjectID   string
	Title       string
	Description string
	Priority    domain.Priority
}

// CreateTask creates an open, unassigned task inside an active project.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(in.ProjectID))
	if err != nil {
		return domain.Task{}, err
	}
	if project.Archived {
		return domain.Task{}, domain.ErrProjectArchived
	}

	task, err := domain.NewTask(domain.TaskInput{
		ID:          s.idGen(),
		ProjectID:   project.ID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
	}, s.clock())
	if err != nil {
		return domain.Task{}, err
	}

	// Creation goes through the guard too, so a task cannot appear inside
	// a project whose archival cascade is already running.
	if err := s.guard.acquireTask(project.ID, task.ID); err != nil {
		return domain.Task{}, err
	}
	defer s.guard.releaseTask(task.ID)

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// GetTask returns one task by id.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return s.repo.GetTask(ctx, strings.TrimSpace(taskID))
}

// ListTasks returns one page of a project's tasks, oldest first.
func (s *Service) ListTasks(ctx context.Context, projectID string, req PageRequest) (Page[domain.Task], error) {
	req, err := req.normalize(defaultTaskPageSize, maxTaskPageSize)
	if err != nil {
		return Page[domain.Task]{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return Page[domain.Task]{}, err
	}
	slices.SortFunc(tasks, func(a, b domain.Task) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return paginate(tasks, req), nil
}

// TaskPatch is a partial update restricted to the mutable task fields. Nil
// fields are left untouched. An empty AssigneeID unassigns.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	Status      *domain.Status
	AssigneeID  *string
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil && p.AssigneeID == nil
}

func (p TaskPatch) assignee() string {
	if p.AssigneeID == nil {
		return ""
	}
	return strings.TrimSpace(*p.AssigneeID)
}

// UpdateTask applies a partial patch atomically: either every patched field
// lands together or none do. Patches that violate the transition rules fail
// with domain.ErrInvalidTransition; patches against an archived project
// fail with domain.ErrProjectArchived; a conflicting in-flight mutation for
// the same task fails with domain.ErrMutationInProgress.
func (s *Service) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (domain.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.Task{}, domain.ErrInvalidID
	}
	if patch.empty() {
		return domain.Task{}, ErrEmptyPatch
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.guard.acquireTask(task.ProjectID, task.ID); err != nil {
		return domain.Task{}, err
	}
	defer s.guard.releaseTask(task.ID)

	// An assigning patch also claims the engineer, covering the span from
	// the availability read to the persisted write. Without it, two
	// assignments of different tasks to the same engineer could both read
	// the engineer as free.
	if assignee := patch.assignee(); assignee != "" {
		if err := s.guard.acquireEngineer(assignee); err != nil {
			return domain.Task{}, err
		}
		defer s.guard.releaseEngineer(assignee)
	}

	// Re-read under the claim; the first read was only for the project id.
	task, err = s.repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	updated, err := s.applyPatch(ctx, task, patch)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.UpdateTask(ctx, updated); err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

// applyPatch validates and applies a patch to an in-memory task. The caller
// holds the task's mutation claim.
func (s *Service) applyPatch(ctx context.Context, task domain.Task, patch TaskPatch) (domain.Task, error) {
	project, err := s.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if project.Archived {
		return domain.Task{}, domain.ErrProjectArchived
	}

	now := s.clock()

	title := task.Title
	description := task.Description
	priority := task.Priority
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	if patch.Priority != nil {
		priority = *patch.Priority
	}
	if err := task.UpdateDetails(title, description, priority, now); err != nil {
		return domain.Task{}, err
	}

	targetStatus := task.Status
	if patch.Status != nil {
		if !domain.IsValidStatus(*patch.Status) {
			return domain.Task{}, domain.ErrInvalidStatus
		}
		targetStatus = *patch.Status
	}

	switch {
	case patch.AssigneeID != nil && *patch.AssigneeID != "":
		// Assignment implies progression; a status in the patch must agree.
		if patch.Status != nil && targetStatus != domain.StatusInProgress {
			return domain.Task{}, domain.ErrInvalidTransition
		}
		if err := s.assignLocked(ctx, &task, *patch.AssigneeID, now); err != nil {
			return domain.Task{}, err
		}
	case patch.AssigneeID != nil:
		// Empty assignee unassigns and returns the task to open.
		if patch.Status != nil && targetStatus != domain.StatusOpen {
			return domain.Task{}, domain.ErrInvalidTransition
		}
		if err := task.Unassign(now); err != nil {
			return domain.Task{}, err
		}
	case patch.Status != nil && targetStatus != task.Status:
		switch targetStatus {
		case domain.StatusDone:
			if err := task.Complete(now); err != nil {
				return domain.Task{}, err
			}
		case domain.StatusOpen:
			if err := task.Unassign(now); err != nil {
				return domain.Task{}, err
			}
		case domain.StatusInProgress:
			// A status-only move into in_progress has no engineer to
			// acquire; assignment happens through the resolver path.
			return domain.Task{}, domain.ErrInvalidTransition
		}
	}
	return task, nil
}

// AssignTask is the resolver entry for open -> in_progress, used both for
// direct manager assignment and for accepting a recommendation; the two are
// functionally identical, and availability is re-validated here against the
// store rather than trusted from any earlier recommendation.
func (s *Service) AssignTask(ctx context.Context, taskID, engineerID string) (domain.Task, error) {
	taskID = strings.TrimSpace(taskID)
	engineerID = strings.TrimSpace(engineerID)
	if taskID == "" {
		return domain.Task{}, domain.ErrInvalidID
	}
	if engineerID == "" {
		return domain.Task{}, domain.ErrInvalidEngineerID
	}
	assignee := engineerID
	return s.UpdateTask(ctx, taskID, TaskPatch{AssigneeID: &assignee})
}

// CompleteTask moves an in_progress task to done.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (domain.Task, error) {
	status := domain.StatusDone
	return s.UpdateTask(ctx, taskID, TaskPatch{Status: &status})
}

// UnassignTask returns an in_progress task to open and frees its engineer.
func (s *Service) UnassignTask(ctx context.Context, taskID string) (domain.Task, error) {
	unassigned := ""
	return s.UpdateTask(ctx, taskID, TaskPatch{AssigneeID: &unassigned})
}

// assignLocked validates availability and assigns. The caller holds the
// task's and the engineer's mutation claims; the availability read goes to
// the authoritative store so concurrent acceptance of a stale
// recommendation fails here.
func (s *Service) assignLocked(ctx context.Context, task *domain.Task, engineerID string, now time.Time) error {
	engineerID = strings.TrimSpace(engineerID)
	if _, err := s.repo.GetEngineer(ctx, engineerID); err != nil {
		return err
	}
	active, err := s.repo.ListTasksByAssignee(ctx, engineerID, domain.StatusInProgress)
	if err != nil {
		return err
	}
	for _, t := range active {
		if t.ID != task.ID {
			return domain.ErrEngineerUnavailable
		}
	}
	return task.Assign(engineerID, now)
}

// engineerHasActiveTask reports whether the engineer holds an in_progress
// task right now.
func (s *Service) engineerHasActiveTask(ctx context.Context, engineerID string) (bool, error) {
	active, err := s.repo.ListTasksByAssignee(ctx, engineerID, domain.StatusInProgress)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

// CurrentTask returns the engineer's single in_progress task, if any. No
// active task is a normal state, reported through ok.
func (s *Service) CurrentTask(ctx context.Context, engineerID string) (domain.Task, bool, error) {
	engineerID = strings.TrimSpace(engineerID)
	if engineerID == "" {
		return domain.Task{}, false, domain.ErrInvalidEngineerID
	}
	active, err := s.repo.ListTasksByAssignee(ctx, engineerID, domain.StatusInProgress)
	if err != nil {
		return domain.Task{}, false, err
	}
	if len(active) == 0 {
		return domain.Task{}, false, nil
	}
	// The single-active-task invariant makes extra rows a store defect,
	// not a choice to make here; surface the first deterministically.
	slices.SortFunc(active, func(a, b domain.Task) int { return strings.Compare(a.ID, b.ID) })
	return active[0], true, nil
}

// TaskHistory returns one page of the engineer's completed tasks, newest
// first, optionally filtered by a case-insensitive search over title and
// description.
func (s *Service) TaskHistory(ctx context.Context, engineerID, search string, req PageRequest) (Page[domain.Task], error) {
	engineerID = strings.TrimSpace(engineerID)
	if engineerID == "" {
		return Page[domain.Task]{}, domain.ErrInvalidEngineerID
	}
	req, err := req.normalize(defaultHistoryPageSize, maxHistoryPageSize)
	if err != nil {
		return Page[domain.Task]{}, err
	}
	done, err := s.repo.ListTasksByAssignee(ctx, engineerID, domain.StatusDone)
	if err != nil {
		return Page[domain.Task]{}, err
	}

	query := strings.ToLower(strings.TrimSpace(search))
	filtered := make([]domain.Task, 0, len(done))
	for _, t := range done {
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Description), query) {
			continue
		}
		filtered = append(filtered, t)
	}
	slices.SortFunc(filtered, func(a, b domain.Task) int {
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.UpdatedAt.After(b.UpdatedAt) {
			return -1
		}
		return 1
	})
	return paginate(filtered, req), nil
}

// Recommendations asks the scoring oracle for ranked candidates and
// enforces the cap and ordering contract on whatever it returns. An empty
// list is a valid outcome, not an error. The gateway call holds no locks
// and is freely cancellable; a transport failure surfaces as
// domain.ErrGatewayUnavailable and direct assignment remains usable.
func (s *Service) Recommendations(ctx context.Context, taskID string, limit int) ([]domain.Recommendation, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, domain.ErrInvalidID
	}
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	if limit == 0 {
		limit = DefaultRecommendationLimit
	}
	if limit > MaxRecommendationLimit {
		limit = MaxRecommendationLimit
	}

	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, domain.ErrGatewayUnavailable
	}
	recs, err := s.gateway.Recommend(ctx, taskID, limit)
	if err != nil {
		return nil, err
	}
	return domain.NormalizeRecommendations(recs, limit), nil
}

// DashboardStats summarizes team load for the manager dashboard.
type DashboardStats struct {
	ActiveProjects     int
	OpenTasks          int
	AvailableEngineers int
	TotalEngineers     int
}

// Stats computes dashboard counts from the store.
func (s *Service) Stats(ctx context.Context) (DashboardStats, error) {
	projects, err := s.repo.ListProjects(ctx, true)
	if err != nil {
		return DashboardStats{}, err
	}
	stats := DashboardStats{}
	for _, p := range projects {
		if p.Archived {
			continue
		}
		stats.ActiveProjects++
		tasks, listErr := s.repo.ListTasks(ctx, p.ID)
		if listErr != nil {
			return DashboardStats{}, listErr
		}
		for _, t := range tasks {
			if t.Status == domain.StatusOpen {
				stats.OpenTasks++
			}
		}
	}

	team, err := s.ListEngineers(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	stats.TotalEngineers = len(team)
	for _, member := range team {
		if member.Availability == domain.AvailabilityAvailable {
			stats.AvailableEngineers++
		}
	}
	return stats, nil
}
