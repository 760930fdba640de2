package core_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"projectbooks/internal/core"
)

// Well-known seed actors. setupTestDB inserts these fresh on every run.
var (
	alice  = core.Actor{ID: 1, Role: core.RoleTeamMember}     // team member
	mark   = core.Actor{ID: 2, Role: core.RoleProjectManager} // manages project 1
	petra  = core.Actor{ID: 3, Role: core.RoleProjectManager} // manages project 2
	fiona  = core.Actor{ID: 4, Role: core.RoleFinanceManager}
	rootie = core.Actor{ID: 5, Role: core.RoleAdmin}
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE document_history,
			vendor_bill_lines, invoice_lines, sales_order_lines, purchase_order_lines,
			vendor_bills, invoices, sales_orders, purchase_orders, expenses,
			tasks, projects, settings, users
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to truncate test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, username, email, role, is_active) VALUES
		(1, 'alice', 'alice@example.com', 'team_member', true),
		(2, 'mark', 'mark@example.com', 'project_manager', true),
		(3, 'petra', 'petra@example.com', 'project_manager', true),
		(4, 'fiona', 'fiona@example.com', 'finance_manager', true),
		(5, 'rootie', 'rootie@example.com', 'admin', true);
		SELECT setval('users_id_seq', 100);

		INSERT INTO projects (id, code, name, manager_id) VALUES
		(1, 'ACME', 'Acme Website Revamp', 2),
		(2, 'ORBIT', 'Orbit Platform Build', 3);
		SELECT setval('projects_id_seq', 100);

		INSERT INTO settings (key, value) VALUES
		('receipt_required_threshold', '100'),
		('default_currency', 'USD'),
		('exchange_rate_multiplier', '1');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func TestExpense_ReceiptThreshold(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewExpenseService(pool)
	ctx := context.Background()

	// Above threshold without a receipt: creation succeeds, submission fails.
	big, err := svc.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Conference travel",
		Amount:      d("150"),
	})
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}
	if !big.ReceiptRequired {
		t.Errorf("expected receipt to be required at 150 against threshold 100")
	}
	if big.Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", big.Currency)
	}

	if _, err := svc.SubmitExpense(ctx, alice, big.ID); !core.IsValidation(err) {
		t.Fatalf("expected validation error submitting without receipt, got %v", err)
	}

	// Attaching a receipt in draft unblocks submission.
	ref := "receipts/conf-2025.pdf"
	big, err = svc.UpdateExpense(ctx, alice, big.ID, core.ExpenseInput{
		ProjectID:   1,
		Description: "Conference travel",
		Amount:      d("150"),
		ReceiptRef:  &ref,
	})
	if err != nil {
		t.Fatalf("failed to attach receipt: %v", err)
	}
	big, err = svc.SubmitExpense(ctx, alice, big.ID)
	if err != nil {
		t.Fatalf("failed to submit expense with receipt: %v", err)
	}
	if big.Status != core.StatusSubmitted {
		t.Errorf("expected status submitted, got %s", big.Status)
	}
	if big.SubmittedAt == nil {
		t.Errorf("expected SubmittedAt to be set on submission")
	}

	// Below threshold no receipt is needed.
	small, err := svc.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Team lunch",
		Amount:      d("42.50"),
	})
	if err != nil {
		t.Fatalf("failed to create small expense: %v", err)
	}
	if small.ReceiptRequired {
		t.Errorf("expected no receipt requirement at 42.50 against threshold 100")
	}
	if _, err := svc.SubmitExpense(ctx, alice, small.ID); err != nil {
		t.Errorf("failed to submit small expense without receipt: %v", err)
	}
}

func TestExpense_ApprovalCostEffect(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	expenses := core.NewExpenseService(pool)
	projects := core.NewProjectService(pool)
	ctx := context.Background()

	exp, err := expenses.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Software license",
		Amount:      d("80"),
	})
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}
	if _, err := expenses.SubmitExpense(ctx, alice, exp.ID); err != nil {
		t.Fatalf("failed to submit expense: %v", err)
	}

	exp, err = expenses.ApproveExpense(ctx, fiona, exp.ID)
	if err != nil {
		t.Fatalf("failed to approve expense: %v", err)
	}
	if exp.Status != core.StatusApproved {
		t.Errorf("expected status approved, got %s", exp.Status)
	}
	if exp.ApproverID == nil || *exp.ApproverID != fiona.ID {
		t.Errorf("expected approver to be recorded")
	}

	project, err := projects.GetProject(ctx, 1)
	if err != nil {
		t.Fatalf("failed to fetch project: %v", err)
	}
	if !project.Cost.Equal(d("80")) {
		t.Errorf("expected project cost 80 after approval, got %s", project.Cost)
	}

	// A second approval must be refused and must not double the cost.
	if _, err := expenses.ApproveExpense(ctx, fiona, exp.ID); !core.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition on double approval, got %v", err)
	}
	project, err = projects.GetProject(ctx, 1)
	if err != nil {
		t.Fatalf("failed to refetch project: %v", err)
	}
	if !project.Cost.Equal(d("80")) {
		t.Errorf("expected project cost to stay 80, got %s", project.Cost)
	}

	exp, err = expenses.ReimburseExpense(ctx, fiona, exp.ID)
	if err != nil {
		t.Fatalf("failed to reimburse expense: %v", err)
	}
	if exp.Status != core.StatusReimbursed || exp.ReimbursedAt == nil {
		t.Errorf("expected reimbursed status with timestamp, got %s", exp.Status)
	}
	if _, err := expenses.ReimburseExpense(ctx, fiona, exp.ID); !core.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition reimbursing twice, got %v", err)
	}
}

func TestExpense_RejectionAndAccess(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewExpenseService(pool)
	ctx := context.Background()

	exp, err := svc.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Dubious purchase",
		Amount:      d("60"),
	})
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}
	if _, err := svc.SubmitExpense(ctx, alice, exp.ID); err != nil {
		t.Fatalf("failed to submit expense: %v", err)
	}

	// The submitter cannot approve their own claim; the denial must leave
	// the document untouched.
	if _, err := svc.ApproveExpense(ctx, alice, exp.ID); !core.IsAccessDenied(err) {
		t.Fatalf("expected access denied for self-approval, got %v", err)
	}
	got, err := svc.GetExpense(ctx, alice, exp.ID)
	if err != nil {
		t.Fatalf("failed to refetch expense: %v", err)
	}
	if got.Status != core.StatusSubmitted {
		t.Errorf("expected status unchanged after denied approval, got %s", got.Status)
	}

	// Petra manages project 2, not project 1.
	if _, err := svc.RejectExpense(ctx, petra, exp.ID, "not yours"); !core.IsAccessDenied(err) {
		t.Errorf("expected access denied for unrelated manager, got %v", err)
	}

	// A rejection reason is mandatory.
	if _, err := svc.RejectExpense(ctx, mark, exp.ID, ""); !core.IsValidation(err) {
		t.Errorf("expected validation error on empty rejection reason, got %v", err)
	}

	got, err = svc.RejectExpense(ctx, mark, exp.ID, "no purchase order reference")
	if err != nil {
		t.Fatalf("failed to reject expense: %v", err)
	}
	if got.Status != core.StatusRejected {
		t.Errorf("expected status rejected, got %s", got.Status)
	}
	if got.RejectionReason == nil || *got.RejectionReason != "no purchase order reference" {
		t.Errorf("expected rejection reason to be stored")
	}

	// Rejected is terminal.
	if _, err := svc.SubmitExpense(ctx, alice, exp.ID); !core.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition resubmitting a rejected expense, got %v", err)
	}
}

func TestExpense_NumberingSequence(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewExpenseService(pool)
	ctx := context.Background()
	period := core.FormatPeriod(time.Now())

	for i := 1; i <= 3; i++ {
		exp, err := svc.CreateExpense(ctx, alice, core.ExpenseInput{
			ProjectID:   1,
			Description: fmt.Sprintf("Expense %d", i),
			Amount:      d("10"),
		})
		if err != nil {
			t.Fatalf("failed to create expense %d: %v", i, err)
		}
		want := fmt.Sprintf("EXP-%s-%03d", period, i)
		if exp.Number != want {
			t.Errorf("expected number %s, got %s", want, exp.Number)
		}
	}
}

func TestExpense_ConcurrentNumbering(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewExpenseService(pool)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateExpense(ctx, alice, core.ExpenseInput{
				ProjectID:   1,
				Description: fmt.Sprintf("Concurrent expense %d", i),
				Amount:      d("5"),
			})
			if err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	var failures int
	for err := range errCh {
		// A conflict after the single retry is tolerated under heavy
		// contention; anything else is a bug.
		if !core.IsConflict(err) {
			t.Errorf("unexpected creation error: %v", err)
		}
		failures++
	}

	var created, distinct int
	if err := pool.QueryRow(ctx, "SELECT count(*), count(DISTINCT number) FROM expenses").Scan(&created, &distinct); err != nil {
		t.Fatalf("failed to count expenses: %v", err)
	}
	if created != distinct {
		t.Errorf("expected every document number to be unique, got %d rows with %d distinct numbers", created, distinct)
	}
	if created+failures != n {
		t.Errorf("expected %d attempts accounted for, got %d created and %d failed", n, created, failures)
	}
}

func TestExpense_ListVisibility(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewExpenseService(pool)
	ctx := context.Background()

	// Alice's expense on Mark's project, Petra's own expense on her project,
	// and Mark's own expense on Petra's project.
	mk := func(actor core.Actor, projectID int, desc string) {
		t.Helper()
		if _, err := svc.CreateExpense(ctx, actor, core.ExpenseInput{
			ProjectID:   projectID,
			Description: desc,
			Amount:      d("10"),
		}); err != nil {
			t.Fatalf("failed to create %q: %v", desc, err)
		}
	}
	mk(alice, 1, "alice on acme")
	mk(petra, 2, "petra on orbit")
	mk(mark, 2, "mark on orbit")

	count := func(actor core.Actor) int {
		t.Helper()
		list, err := svc.ListExpenses(ctx, actor, core.ExpenseFilter{})
		if err != nil {
			t.Fatalf("failed to list expenses: %v", err)
		}
		return len(list)
	}

	if got := count(alice); got != 1 {
		t.Errorf("team member should see only own expenses, got %d", got)
	}
	// Mark sees his own expense plus everything on the project he manages.
	if got := count(mark); got != 2 {
		t.Errorf("project manager should see own + managed, got %d", got)
	}
	// Petra manages project 2, so she sees both expenses there.
	if got := count(petra); got != 2 {
		t.Errorf("project manager should see own + managed, got %d", got)
	}
	if got := count(fiona); got != 3 {
		t.Errorf("finance manager should see all expenses, got %d", got)
	}
	if got := count(rootie); got != 3 {
		t.Errorf("admin should see all expenses, got %d", got)
	}
}

func TestExpense_HistoryTrail(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	expenses := core.NewExpenseService(pool)
	history := core.NewHistoryService(pool)
	ctx := context.Background()

	exp, err := expenses.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Initial",
		Amount:      d("30"),
	})
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}
	if _, err := expenses.UpdateExpense(ctx, alice, exp.ID, core.ExpenseInput{
		ProjectID:   1,
		Description: "Corrected description",
		Amount:      d("35"),
	}); err != nil {
		t.Fatalf("failed to update expense: %v", err)
	}
	if _, err := expenses.SubmitExpense(ctx, alice, exp.ID); err != nil {
		t.Fatalf("failed to submit expense: %v", err)
	}

	records, err := history.ListHistory(ctx, core.DocTypeExpense, exp.ID)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(records))
	}

	wantActions := []core.Action{core.ActionCreate, core.ActionEdit, core.ActionSubmit}
	for i, rec := range records {
		if rec.Action != wantActions[i] {
			t.Errorf("record %d: expected action %s, got %s", i, wantActions[i], rec.Action)
		}
		if rec.ActorID != alice.ID {
			t.Errorf("record %d: expected actor %d, got %d", i, alice.ID, rec.ActorID)
		}
		if len(rec.After) == 0 {
			t.Errorf("record %d: expected an after-snapshot", i)
		}
	}
	if records[2].OldStatus == nil || *records[2].OldStatus != core.StatusDraft {
		t.Errorf("submission record should carry old status draft")
	}
	if records[2].NewStatus == nil || *records[2].NewStatus != core.StatusSubmitted {
		t.Errorf("submission record should carry new status submitted")
	}
}

func TestExpense_AdminDeleteDraftOnly(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	expenses := core.NewExpenseService(pool)
	history := core.NewHistoryService(pool)
	ctx := context.Background()

	exp, err := expenses.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Stray draft",
		Amount:      d("12"),
	})
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}

	if err := expenses.DeleteExpense(ctx, alice, exp.ID); !core.IsAccessDenied(err) {
		t.Fatalf("expected access denied deleting as owner, got %v", err)
	}
	if err := expenses.DeleteExpense(ctx, rootie, exp.ID); err != nil {
		t.Fatalf("admin failed to delete draft: %v", err)
	}
	if _, err := expenses.GetExpense(ctx, rootie, exp.ID); !core.IsNotFound(err) {
		t.Errorf("expected not found after deletion, got %v", err)
	}

	// The trail outlives the document, ending in a delete record.
	records, err := history.ListHistory(ctx, core.DocTypeExpense, exp.ID)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) == 0 || records[len(records)-1].Action != core.ActionDelete {
		t.Fatalf("expected a trailing delete record, got %d records", len(records))
	}

	// Non-drafts cannot be deleted even by the admin.
	exp2, err := expenses.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Submitted claim",
		Amount:      d("12"),
	})
	if err != nil {
		t.Fatalf("failed to create second expense: %v", err)
	}
	if _, err := expenses.SubmitExpense(ctx, alice, exp2.ID); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	if err := expenses.DeleteExpense(ctx, rootie, exp2.ID); !core.IsValidation(err) {
		t.Errorf("expected validation error deleting a submitted expense, got %v", err)
	}
}
