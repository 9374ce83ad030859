// Package postgres is the shared task-store adapter for multi-node
// deployments, backed by pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hylla/fordela/internal/adapters/storage/postgres/migrations"
	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/domain"
)

const (
	projectColumns  = "id, name, description, archived, created_at, updated_at, archived_at"
	engineerColumns = "id, name, email, created_at, updated_at"
	taskColumns     = "id, project_id, title, description, priority, status, assignee_id, created_at, updated_at"
)

// Repository implements the task-store port over a PostgreSQL connection
// pool. Queries are built with squirrel in dollar-placeholder form.
type Repository struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
	url  string
}

// Open connects to the database at url, verifies the connection, and runs
// pending migrations.
func Open(ctx context.Context, url string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &Repository{
		pool: pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		url:  url,
	}
	if err := repo.migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) migrate() error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, r.url)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping reports whether the pool can still reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	query, args, err := r.sb.Insert("projects").
		Columns("id", "name", "description", "archived", "created_at", "updated_at", "archived_at").
		Values(p.ID, p.Name, p.Description, p.Archived, p.CreatedAt, p.UpdatedAt, p.ArchivedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	query, args, err := r.sb.Update("projects").
		Set("name", p.Name).
		Set("description", p.Description).
		Set("archived", p.Archived).
		Set("updated_at", p.UpdatedAt).
		Set("archived_at", p.ArchivedAt).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	query, args, err := r.sb.Select(projectColumns).
		From("projects").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Project{}, err
	}
	return scanProject(r.pool.QueryRow(ctx, query, args...))
}

func (r *Repository) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	builder := r.sb.Select(projectColumns).
		From("projects").
		OrderBy("created_at ASC", "id ASC")
	if !includeArchived {
		builder = builder.Where(squirrel.Eq{"archived": false})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) CreateEngineer(ctx context.Context, e domain.Engineer) error {
	query, args, err := r.sb.Insert("engineers").
		Columns("id", "name", "email", "created_at", "updated_at").
		Values(e.ID, e.Name, e.Email, e.CreatedAt, e.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func (r *Repository) GetEngineer(ctx context.Context, id string) (domain.Engineer, error) {
	query, args, err := r.sb.Select(engineerColumns).
		From("engineers").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Engineer{}, err
	}
	return scanEngineer(r.pool.QueryRow(ctx, query, args...))
}

func (r *Repository) ListEngineers(ctx context.Context) ([]domain.Engineer, error) {
	query, args, err := r.sb.Select(engineerColumns).
		From("engineers").
		OrderBy("name ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Engineer{}
	for rows.Next() {
		e, scanErr := scanEngineer(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	query, args, err := r.sb.Insert("tasks").
		Columns("id", "project_id", "title", "description", "priority", "status", "assignee_id", "created_at", "updated_at").
		Values(t.ID, t.ProjectID, t.Title, t.Description, string(t.Priority), string(t.Status), t.AssigneeID, t.CreatedAt, t.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	query, args, err := r.sb.Update("tasks").
		Set("title", t.Title).
		Set("description", t.Description).
		Set("priority", string(t.Priority)).
		Set("status", string(t.Status)).
		Set("assignee_id", t.AssigneeID).
		Set("updated_at", t.UpdatedAt).
		Where(squirrel.Eq{"id": t.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	query, args, err := r.sb.Select(taskColumns).
		From("tasks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Task{}, err
	}
	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

func (r *Repository) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	query, args, err := r.sb.Select(taskColumns).
		From("tasks").
		Where(squirrel.Eq{"project_id": projectID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryTasks(ctx, query, args...)
}

func (r *Repository) ListTasksByAssignee(ctx context.Context, engineerID string, status domain.Status) ([]domain.Task, error) {
	query, args, err := r.sb.Select(taskColumns).
		From("tasks").
		Where(squirrel.Eq{"assignee_id": engineerID, "status": string(status)}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryTasks(ctx, query, args...)
}

func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Archived, &p.CreatedAt, &p.UpdatedAt, &p.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Project{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func scanEngineer(s scanner) (domain.Engineer, error) {
	var e domain.Engineer
	err := s.Scan(&e.ID, &e.Name, &e.Email, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Engineer{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Engineer{}, err
	}
	return e, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t        domain.Task
		priority string
		status   string
	)
	err := s.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &priority, &status, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	return t, nil
}
