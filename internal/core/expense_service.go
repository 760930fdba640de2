package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const expenseColumns = `id, number, project_id, task_id, description, amount, currency,
	amount_company_currency, receipt_ref, receipt_required, status, submitted_by, submitted_at,
	approver_id, approved_at, rejection_reason, rejected_at, reimbursed_at, created_at, updated_by, updated_at`

type expenseService struct {
	pool *pgxpool.Pool
}

// NewExpenseService constructs an ExpenseService backed by PostgreSQL.
func NewExpenseService(pool *pgxpool.Pool) ExpenseService {
	return &expenseService{pool: pool}
}

func validateExpenseInput(in ExpenseInput) error {
	if in.ProjectID == 0 {
		return validationf("expense must reference a project")
	}
	if in.Description == "" {
		return validationf("expense description is required")
	}
	if !in.Amount.IsPositive() {
		return validationf("expense amount must be > 0, got %s", in.Amount)
	}
	return nil
}

func (s *expenseService) CreateExpense(ctx context.Context, actor Actor, in ExpenseInput) (*Expense, error) {
	if err := validateExpenseInput(in); err != nil {
		return nil, err
	}
	if !Allowed(actor, ActionCreate, nil) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionCreate}
	}

	// Concurrent creators in the same month can race on the next number;
	// the unique constraint rejects the loser and we retry once.
	expense, err := s.createOnce(ctx, actor, in)
	if IsConflict(err) {
		expense, err = s.createOnce(ctx, actor, in)
	}
	return expense, err
}

func (s *expenseService) createOnce(ctx context.Context, actor Actor, in ExpenseInput) (*Expense, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := projectManagerID(ctx, tx, in.ProjectID); err != nil {
		return nil, err
	}

	settings, err := loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = settings.DefaultCurrency
	}
	companyAmount := in.Amount
	if currency != settings.DefaultCurrency {
		companyAmount = in.Amount.Mul(settings.ExchangeRateMultiplier)
	}
	receiptRequired := companyAmount.GreaterThanOrEqual(settings.ReceiptRequiredThreshold)

	number, err := nextDocumentNumber(ctx, tx, DocTypeExpense, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO expenses (number, project_id, task_id, description, amount, currency,
			amount_company_currency, receipt_ref, receipt_required, status, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING `+expenseColumns,
		number, in.ProjectID, in.TaskID, in.Description, in.Amount, currency,
		companyAmount, in.ReceiptRef, receiptRequired, string(StatusDraft), actor.ID)
	expense, err := scanExpense(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert expense: %w", err)
	}

	after, err := snapshot(expense)
	if err != nil {
		return nil, err
	}
	newStatus := expense.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeExpense,
		DocumentID: expense.ID,
		Action:     ActionCreate,
		NewStatus:  &newStatus,
		ActorID:    actor.ID,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expense creation: %w", err)
	}
	return expense, nil
}

func (s *expenseService) UpdateExpense(ctx context.Context, actor Actor, expenseID int, in ExpenseInput) (*Expense, error) {
	if err := validateExpenseInput(in); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	expense, err := fetchExpenseForUpdateTx(ctx, tx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.Status != StatusDraft {
		return nil, validationf("expense %s can only be edited in draft, current status: %s", expense.Number, expense.Status)
	}
	if in.ProjectID != expense.ProjectID {
		return nil, validationf("expense %s cannot move to another project", expense.Number)
	}

	managerID, err := projectManagerID(ctx, tx, expense.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: expense.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionEdit, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionEdit}
	}

	before, err := snapshot(expense)
	if err != nil {
		return nil, err
	}

	settings, err := loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	currency := in.Currency
	if currency == "" {
		currency = settings.DefaultCurrency
	}
	companyAmount := in.Amount
	if currency != settings.DefaultCurrency {
		companyAmount = in.Amount.Mul(settings.ExchangeRateMultiplier)
	}
	receiptRequired := companyAmount.GreaterThanOrEqual(settings.ReceiptRequiredThreshold)

	row := tx.QueryRow(ctx, `
		UPDATE expenses
		SET task_id = $1, description = $2, amount = $3, currency = $4,
		    amount_company_currency = $5, receipt_ref = $6, receipt_required = $7,
		    updated_by = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING `+expenseColumns,
		in.TaskID, in.Description, in.Amount, currency,
		companyAmount, in.ReceiptRef, receiptRequired, actor.ID, expenseID)
	updated, err := scanExpense(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update expense %d: %w", expenseID, err)
	}

	after, err := snapshot(updated)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeExpense,
		DocumentID: updated.ID,
		Action:     ActionEdit,
		OldStatus:  &draft,
		NewStatus:  &draft,
		ActorID:    actor.ID,
		Before:     before,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expense update: %w", err)
	}
	return updated, nil
}

func (s *expenseService) SubmitExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error) {
	return s.transition(ctx, actor, expenseID, ActionSubmit, StatusSubmitted, nil)
}

func (s *expenseService) ApproveExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error) {
	return s.transition(ctx, actor, expenseID, ActionApprove, StatusApproved, nil)
}

func (s *expenseService) RejectExpense(ctx context.Context, actor Actor, expenseID int, reason string) (*Expense, error) {
	if reason == "" {
		return nil, validationf("rejection reason is required")
	}
	return s.transition(ctx, actor, expenseID, ActionReject, StatusRejected, &reason)
}

func (s *expenseService) ReimburseExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error) {
	return s.transition(ctx, actor, expenseID, ActionReimburse, StatusReimbursed, nil)
}

// transition runs one status change as a single atomic unit: graph check,
// policy check, ledger effect, row update, history append.
func (s *expenseService) transition(ctx context.Context, actor Actor, expenseID int, action Action, target Status, reason *string) (*Expense, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	expense, err := fetchExpenseForUpdateTx(ctx, tx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(DocTypeExpense, expense.Status, target); err != nil {
		return nil, err
	}

	managerID, err := projectManagerID(ctx, tx, expense.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: expense.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, action, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: action}
	}

	before, err := snapshot(expense)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch target {
	case StatusSubmitted:
		if expense.ReceiptRequired && (expense.ReceiptRef == nil || *expense.ReceiptRef == "") {
			return nil, validationf("expense %s requires a receipt reference before submission", expense.Number)
		}
		expense.SubmittedAt = &now
	case StatusApproved:
		approver := actor.ID
		expense.ApproverID = &approver
		expense.ApprovedAt = &now
		if err := addProjectCostTx(ctx, tx, expense.ProjectID, expense.AmountCompanyCurrency); err != nil {
			return nil, err
		}
	case StatusRejected:
		expense.RejectionReason = reason
		expense.RejectedAt = &now
	case StatusReimbursed:
		expense.ReimbursedAt = &now
	}

	oldStatus := expense.Status
	expense.Status = target
	expense.UpdatedBy = actor.ID
	expense.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE expenses
		SET status = $1, submitted_at = $2, approver_id = $3, approved_at = $4,
		    rejection_reason = $5, rejected_at = $6, reimbursed_at = $7,
		    updated_by = $8, updated_at = $9
		WHERE id = $10
	`, string(expense.Status), expense.SubmittedAt, expense.ApproverID, expense.ApprovedAt,
		expense.RejectionReason, expense.RejectedAt, expense.ReimbursedAt,
		expense.UpdatedBy, expense.UpdatedAt, expense.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist expense transition: %w", err)
	}

	after, err := snapshot(expense)
	if err != nil {
		return nil, err
	}
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeExpense,
		DocumentID: expense.ID,
		Action:     action,
		OldStatus:  &oldStatus,
		NewStatus:  &target,
		ActorID:    actor.ID,
		Reason:     reason,
		Before:     before,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expense transition: %w", err)
	}
	return expense, nil
}

func (s *expenseService) DeleteExpense(ctx context.Context, actor Actor, expenseID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	expense, err := fetchExpenseForUpdateTx(ctx, tx, expenseID)
	if err != nil {
		return err
	}
	if !Allowed(actor, ActionDelete, nil) {
		return &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionDelete}
	}
	if expense.Status != StatusDraft {
		return validationf("expense %s can only be deleted in draft, current status: %s", expense.Number, expense.Status)
	}

	before, err := snapshot(expense)
	if err != nil {
		return err
	}
	oldStatus := expense.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeExpense,
		DocumentID: expense.ID,
		Action:     ActionDelete,
		OldStatus:  &oldStatus,
		ActorID:    actor.ID,
		Before:     before,
	}); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM expenses WHERE id = $1", expenseID); err != nil {
		return fmt.Errorf("failed to delete expense %d: %w", expenseID, err)
	}
	return tx.Commit(ctx)
}

func (s *expenseService) GetExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = $1", expenseID)
	expense, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("expense", expenseID)
		}
		return nil, fmt.Errorf("failed to fetch expense %d: %w", expenseID, err)
	}

	managerID, err := projectManagerID(ctx, s.pool, expense.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: expense.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionView, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionView}
	}
	return expense, nil
}

func (s *expenseService) ListExpenses(ctx context.Context, actor Actor, filter ExpenseFilter) ([]Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses WHERE 1=1"
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}

	// Visibility mirrors the view policy: team members see their own
	// documents, project managers additionally their projects' documents,
	// finance managers and admins see everything.
	switch actor.Role {
	case RoleTeamMember:
		add("submitted_by = $%d", actor.ID)
	case RoleProjectManager:
		add("(submitted_by = $%d OR project_id IN (SELECT id FROM projects WHERE manager_id = $%[1]d))", actor.ID)
	}

	if filter.ProjectID != nil {
		add("project_id = $%d", *filter.ProjectID)
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.SubmittedBy != nil {
		add("submitted_by = $%d", *filter.SubmittedBy)
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, *expense)
	}
	return expenses, rows.Err()
}

// fetchExpenseForUpdateTx loads an expense row with a row lock held for the
// remainder of the transaction.
func fetchExpenseForUpdateTx(ctx context.Context, tx pgx.Tx, expenseID int) (*Expense, error) {
	row := tx.QueryRow(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = $1 FOR UPDATE", expenseID)
	expense, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("expense", expenseID)
		}
		return nil, fmt.Errorf("failed to lock expense %d: %w", expenseID, err)
	}
	return expense, nil
}

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Number, &e.ProjectID, &e.TaskID, &e.Description, &e.Amount, &e.Currency,
		&e.AmountCompanyCurrency, &e.ReceiptRef, &e.ReceiptRequired, &e.Status, &e.SubmittedBy, &e.SubmittedAt,
		&e.ApproverID, &e.ApprovedAt, &e.RejectionReason, &e.RejectedAt, &e.ReimbursedAt,
		&e.CreatedAt, &e.UpdatedBy, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
