package app

import (
	"context"

	"github.com/hylla/fordela/internal/domain"
)

// Repository is the persistence port for the task store. Adapters must make
// each write atomic; cross-entity ordering is the service's concern.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context, bool) ([]domain.Project, error)

	CreateEngineer(context.Context, domain.Engineer) error
	GetEngineer(context.Context, string) (domain.Engineer, error)
	ListEngineers(context.Context) ([]domain.Engineer, error)

	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	ListTasks(context.Context, string) ([]domain.Task, error)
	ListTasksByAssignee(context.Context, string, domain.Status) ([]domain.Task, error)
}

// RecommendationGateway is the typed interface to the external scoring
// service. It is an untrusted ranking oracle: results are advisory, carry
// no reservation, and may be stale by the time a caller accepts one.
// Implementations report unreachability as domain.ErrGatewayUnavailable.
type RecommendationGateway interface {
	Recommend(ctx context.Context, taskID string, limit int) ([]domain.Recommendation, error)
}
