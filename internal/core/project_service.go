package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProjectService manages the project and task registry that documents
// attach to.
type ProjectService interface {
	CreateProject(ctx context.Context, actor Actor, code, name string, managerID int) (*Project, error)
	GetProject(ctx context.Context, projectID int) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	AddTask(ctx context.Context, actor Actor, projectID int, name string, assigneeID *int) (*Task, error)
	ListTasks(ctx context.Context, projectID int) ([]Task, error)
}

type projectService struct {
	pool *pgxpool.Pool
}

// NewProjectService constructs a ProjectService backed by PostgreSQL.
func NewProjectService(pool *pgxpool.Pool) ProjectService {
	return &projectService{pool: pool}
}

func (s *projectService) CreateProject(ctx context.Context, actor Actor, code, name string, managerID int) (*Project, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleProjectManager {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionCreate}
	}
	if code == "" || name == "" {
		return nil, validationf("project code and name are required")
	}

	var p Project
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (code, name, manager_id)
		VALUES ($1, $2, $3)
		RETURNING id, code, name, manager_id, cost, revenue, created_at
	`, code, name, managerID).Scan(&p.ID, &p.Code, &p.Name, &p.ManagerID, &p.Cost, &p.Revenue, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("project code %s already exists", code)}
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return &p, nil
}

func (s *projectService) GetProject(ctx context.Context, projectID int) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, manager_id, cost, revenue, created_at
		FROM projects
		WHERE id = $1
	`, projectID).Scan(&p.ID, &p.Code, &p.Name, &p.ManagerID, &p.Cost, &p.Revenue, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("project", projectID)
		}
		return nil, fmt.Errorf("failed to fetch project %d: %w", projectID, err)
	}
	return &p, nil
}

func (s *projectService) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, manager_id, cost, revenue, created_at
		FROM projects
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.ManagerID, &p.Cost, &p.Revenue, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *projectService) AddTask(ctx context.Context, actor Actor, projectID int, name string, assigneeID *int) (*Task, error) {
	if name == "" {
		return nil, validationf("task name is required")
	}

	managerID, err := projectManagerID(ctx, s.pool, projectID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && actor.ID != managerID {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionCreate}
	}

	var t Task
	err = s.pool.QueryRow(ctx, `
		INSERT INTO tasks (project_id, name, assignee_id)
		VALUES ($1, $2, $3)
		RETURNING id, project_id, name, assignee_id, created_at
	`, projectID, name, assigneeID).Scan(&t.ID, &t.ProjectID, &t.Name, &t.AssigneeID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &t, nil
}

func (s *projectService) ListTasks(ctx context.Context, projectID int) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, assignee_id, created_at
		FROM tasks
		WHERE project_id = $1
		ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.AssigneeID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// projectManagerID resolves the manager of a project for policy checks.
// Works with either the pool or an open transaction.
func projectManagerID(ctx context.Context, q pgxQuerier, projectID int) (int, error) {
	var managerID int
	err := q.QueryRow(ctx, "SELECT manager_id FROM projects WHERE id = $1", projectID).Scan(&managerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFound("project", projectID)
		}
		return 0, fmt.Errorf("failed to resolve project %d manager: %w", projectID, err)
	}
	return managerID, nil
}
