package app

import (
	"sync"

	"github.com/hylla/fordela/internal/domain"
)

// mutationGuard serializes writes: at most one in-flight mutation per task
// id, at most one in-flight assignment per engineer id, and project-wide
// exclusivity while an archival cascade runs. A second claim for a held id
// fails with domain.ErrMutationInProgress instead of interleaving. Claims
// are logical and in-process; they are held across the persistence call but
// never across a gateway call.
type mutationGuard struct {
	mu sync.Mutex
	// tasks maps each held task id to its project id, so a project claim
	// can refuse while any child mutation is in flight, including one for
	// a task created after the archival's candidate list was read.
	tasks     map[string]string
	engineers map[string]struct{}
	projects  map[string]struct{}
}

func newMutationGuard() *mutationGuard {
	return &mutationGuard{
		tasks:     map[string]string{},
		engineers: map[string]struct{}{},
		projects:  map[string]struct{}{},
	}
}

// acquireTask claims one task id for a single mutation. It fails when the
// task is already held or when its project is being archived, so no task
// mutation can land after a project-level freeze has begun.
func (g *mutationGuard) acquireTask(projectID, taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.projects[projectID]; held {
		return domain.ErrMutationInProgress
	}
	if _, held := g.tasks[taskID]; held {
		return domain.ErrMutationInProgress
	}
	g.tasks[taskID] = projectID
	return nil
}

func (g *mutationGuard) releaseTask(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tasks, taskID)
}

// acquireEngineer claims one engineer id for the span of an assignment's
// availability check and write, so two assignments naming the same
// engineer cannot both read the engineer as free.
func (g *mutationGuard) acquireEngineer(engineerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.engineers[engineerID]; held {
		return domain.ErrMutationInProgress
	}
	g.engineers[engineerID] = struct{}{}
	return nil
}

func (g *mutationGuard) releaseEngineer(engineerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.engineers, engineerID)
}

// acquireProject claims a project for the duration of an archival. The
// claim is all-or-nothing: if any child task mutation is still in flight,
// whatever its id, the archival fails as transient and the caller retries
// after backoff.
func (g *mutationGuard) acquireProject(projectID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.projects[projectID]; held {
		return domain.ErrMutationInProgress
	}
	for _, heldProject := range g.tasks {
		if heldProject == projectID {
			return domain.ErrMutationInProgress
		}
	}
	g.projects[projectID] = struct{}{}
	return nil
}

func (g *mutationGuard) releaseProject(projectID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.projects, projectID)
}
