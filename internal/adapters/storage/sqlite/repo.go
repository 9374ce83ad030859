// Package sqlite is the embedded task-store adapter backing app.Repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/domain"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Repository persists projects, engineers, and tasks in a single sqlite
// database. Each write is one statement or one transaction, so a mutation
// either lands whole or not at all.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path, creating directories as
// needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a throwaway in-memory database, used by tests.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS engineers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			assignee_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee_status ON tasks(assignee_id, status);`,
		// The store enforces one in_progress task per engineer even if a
		// write slips past the service-level claim.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_assignee ON tasks(assignee_id) WHERE status = 'in_progress';`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProject inserts a project row.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects(id, name, description, archived, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, boolToInt(p.Archived), ts(p.CreatedAt), ts(p.UpdatedAt), nullableTS(p.ArchivedAt))
	return err
}

// UpdateProject rewrites a project row.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, description = ?, archived = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, p.Name, p.Description, boolToInt(p.Archived), ts(p.UpdatedAt), nullableTS(p.ArchivedAt), p.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetProject returns one project by id.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, archived, created_at, updated_at, archived_at
		FROM projects
		WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects lists projects oldest first, optionally including archived
// ones.
func (r *Repository) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	query := `
		SELECT id, name, description, archived, created_at, updated_at, archived_at
		FROM projects
	`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
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

// CreateEngineer inserts an engineer row.
func (r *Repository) CreateEngineer(ctx context.Context, e domain.Engineer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engineers(id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Name, e.Email, ts(e.CreatedAt), ts(e.UpdatedAt))
	return err
}

// GetEngineer returns one engineer by id.
func (r *Repository) GetEngineer(ctx context.Context, id string) (domain.Engineer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM engineers
		WHERE id = ?
	`, id)
	return scanEngineer(row)
}

// ListEngineers lists engineers by name.
func (r *Repository) ListEngineers(ctx context.Context) ([]domain.Engineer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM engineers
		ORDER BY name ASC, id ASC
	`)
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

// CreateTask inserts a task row.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks(id, project_id, title, description, priority, status, assignee_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Title, t.Description, string(t.Priority), string(t.Status), t.AssigneeID, ts(t.CreatedAt), ts(t.UpdatedAt))
	return err
}

// UpdateTask rewrites every mutable task field in one statement, so a
// partial patch lands all together or not at all.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, priority = ?, status = ?, assignee_id = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, t.Description, string(t.Priority), string(t.Status), t.AssigneeID, ts(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetTask returns one task by id.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, priority, status, assignee_id, created_at, updated_at
		FROM tasks
		WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListTasks lists a project's tasks oldest first.
func (r *Repository) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, title, description, priority, status, assignee_id, created_at, updated_at
		FROM tasks
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasksByAssignee lists an engineer's tasks in one status. The
// (assignee, status) index keeps the resolver's availability check cheap.
func (r *Repository) ListTasksByAssignee(ctx context.Context, engineerID string, status domain.Status) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, title, description, priority, status, assignee_id, created_at, updated_at
		FROM tasks
		WHERE assignee_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`, engineerID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		archived   int
		createdRaw string
		updatedRaw string
		archivedAt sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &archived, &createdRaw, &updatedRaw, &archivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.Archived = archived != 0
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	p.ArchivedAt = parseNullTS(archivedAt)
	return p, nil
}

func scanEngineer(s scanner) (domain.Engineer, error) {
	var (
		e          domain.Engineer
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&e.ID, &e.Name, &e.Email, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Engineer{}, app.ErrNotFound
		}
		return domain.Engineer{}, err
	}
	e.CreatedAt = parseTS(createdRaw)
	e.UpdatedAt = parseTS(updatedRaw)
	return e, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t          domain.Task
		priority   string
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &priority, &status, &t.AssigneeID, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}
