package core_test

import (
	"context"
	"testing"

	"projectbooks/internal/core"
)

func TestProject_CreateAndTasks(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewProjectService(pool)
	ctx := context.Background()

	if _, err := svc.CreateProject(ctx, alice, "SIDE", "Side Gig", mark.ID); !core.IsAccessDenied(err) {
		t.Errorf("expected access denied creating project as team member, got %v", err)
	}

	p, err := svc.CreateProject(ctx, rootie, "SIDE", "Side Gig", mark.ID)
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if p.ManagerID != mark.ID {
		t.Errorf("expected manager %d, got %d", mark.ID, p.ManagerID)
	}
	if !p.Cost.IsZero() || !p.Revenue.IsZero() {
		t.Errorf("expected fresh project with zero aggregates")
	}

	// Project codes are unique.
	if _, err := svc.CreateProject(ctx, rootie, "SIDE", "Duplicate", mark.ID); !core.IsConflict(err) {
		t.Errorf("expected conflict on duplicate code, got %v", err)
	}

	// Only the manager or an admin shapes the task list.
	if _, err := svc.AddTask(ctx, alice, p.ID, "Sneaky task", nil); !core.IsAccessDenied(err) {
		t.Errorf("expected access denied adding task as team member, got %v", err)
	}
	assignee := alice.ID
	task, err := svc.AddTask(ctx, mark, p.ID, "Wireframes", &assignee)
	if err != nil {
		t.Fatalf("failed to add task: %v", err)
	}
	if task.AssigneeID == nil || *task.AssigneeID != alice.ID {
		t.Errorf("expected assignee to be stored")
	}

	tasks, err := svc.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "Wireframes" {
		t.Errorf("expected one task named Wireframes, got %d", len(tasks))
	}
}

func TestProject_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewProjectService(pool)
	if _, err := svc.GetProject(context.Background(), 99999); !core.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
