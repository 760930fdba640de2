package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invoiceColumns = `id, number, project_id, customer_name, sales_order_id, notes, status, subtotal,
	total_tax, grand_total, submitted_by, posted_at, paid_at, created_at, updated_by, updated_at`

type invoiceService struct {
	pool *pgxpool.Pool
}

// NewInvoiceService constructs an InvoiceService backed by PostgreSQL.
func NewInvoiceService(pool *pgxpool.Pool) InvoiceService {
	return &invoiceService{pool: pool}
}

func validateInvoiceInput(in InvoiceInput) error {
	if in.ProjectID == 0 {
		return validationf("invoice must reference a project")
	}
	if in.CustomerName == "" {
		return validationf("invoice customer name is required")
	}
	return nil
}

func (s *invoiceService) CreateInvoice(ctx context.Context, actor Actor, in InvoiceInput) (*Invoice, error) {
	if err := validateInvoiceInput(in); err != nil {
		return nil, err
	}
	if !Allowed(actor, ActionCreate, nil) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionCreate}
	}

	invoice, err := s.createOnce(ctx, actor, in)
	if IsConflict(err) {
		invoice, err = s.createOnce(ctx, actor, in)
	}
	return invoice, err
}

func (s *invoiceService) createOnce(ctx context.Context, actor Actor, in InvoiceInput) (*Invoice, error) {
	amounts, totals, err := ComputeLines(in.Lines)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := projectManagerID(ctx, tx, in.ProjectID); err != nil {
		return nil, err
	}

	number, err := nextDocumentNumber(ctx, tx, DocTypeInvoice, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO invoices (number, project_id, customer_name, notes, status, subtotal, total_tax, grand_total, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+invoiceColumns,
		number, in.ProjectID, in.CustomerName, in.Notes, string(StatusDraft),
		totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := insertLinesTx(ctx, tx, DocTypeInvoice, invoice.ID, in.Lines, amounts); err != nil {
		return nil, err
	}
	invoice.Lines, err = fetchLines(ctx, tx, DocTypeInvoice, invoice.ID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(invoice)
	if err != nil {
		return nil, err
	}
	newStatus := invoice.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeInvoice,
		DocumentID: invoice.ID,
		Action:     ActionCreate,
		NewStatus:  &newStatus,
		ActorID:    actor.ID,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice creation: %w", err)
	}
	return invoice, nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, actor Actor, invoiceID int, in InvoiceInput) (*Invoice, error) {
	if err := validateInvoiceInput(in); err != nil {
		return nil, err
	}
	amounts, totals, err := ComputeLines(in.Lines)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	invoice, err := fetchInvoiceForUpdateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != StatusDraft {
		return nil, validationf("invoice %s can only be edited in draft, current status: %s", invoice.Number, invoice.Status)
	}
	if in.ProjectID != invoice.ProjectID {
		return nil, validationf("invoice %s cannot move to another project", invoice.Number)
	}

	managerID, err := projectManagerID(ctx, tx, invoice.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: invoice.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionEdit, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionEdit}
	}

	invoice.Lines, err = fetchLines(ctx, tx, DocTypeInvoice, invoice.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(invoice)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE invoices
		SET customer_name = $1, notes = $2, subtotal = $3, total_tax = $4, grand_total = $5,
		    updated_by = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+invoiceColumns,
		in.CustomerName, in.Notes, totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID, invoiceID)
	updated, err := scanInvoice(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d: %w", invoiceID, err)
	}

	if err := replaceLinesTx(ctx, tx, DocTypeInvoice, invoiceID, in.Lines, amounts); err != nil {
		return nil, err
	}
	updated.Lines, err = fetchLines(ctx, tx, DocTypeInvoice, invoiceID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(updated)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeInvoice,
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
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return updated, nil
}

func (s *invoiceService) PostInvoice(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error) {
	return s.transition(ctx, actor, invoiceID, ActionPost, StatusPosted)
}

func (s *invoiceService) MarkInvoicePaid(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error) {
	return s.transition(ctx, actor, invoiceID, ActionPay, StatusPaid)
}

// transition runs one status change as a single atomic unit: graph check,
// policy check, ledger effect, row update, history append.
func (s *invoiceService) transition(ctx context.Context, actor Actor, invoiceID int, action Action, target Status) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	invoice, err := fetchInvoiceForUpdateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(DocTypeInvoice, invoice.Status, target); err != nil {
		return nil, err
	}

	managerID, err := projectManagerID(ctx, tx, invoice.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: invoice.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, action, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: action}
	}

	invoice.Lines, err = fetchLines(ctx, tx, DocTypeInvoice, invoice.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(invoice)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch target {
	case StatusPosted:
		invoice.PostedAt = &now
	case StatusPaid:
		invoice.PaidAt = &now
		if err := addProjectRevenueTx(ctx, tx, invoice.ProjectID, invoice.GrandTotal); err != nil {
			return nil, err
		}
	}

	oldStatus := invoice.Status
	invoice.Status = target
	invoice.UpdatedBy = actor.ID
	invoice.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET status = $1, posted_at = $2, paid_at = $3, updated_by = $4, updated_at = $5
		WHERE id = $6
	`, string(invoice.Status), invoice.PostedAt, invoice.PaidAt, invoice.UpdatedBy, invoice.UpdatedAt, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist invoice transition: %w", err)
	}

	after, err := snapshot(invoice)
	if err != nil {
		return nil, err
	}
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeInvoice,
		DocumentID: invoice.ID,
		Action:     action,
		OldStatus:  &oldStatus,
		NewStatus:  &target,
		ActorID:    actor.ID,
		Before:     before,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice transition: %w", err)
	}
	return invoice, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, actor Actor, invoiceID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	invoice, err := fetchInvoiceForUpdateTx(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	if !Allowed(actor, ActionDelete, nil) {
		return &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionDelete}
	}
	if invoice.Status != StatusDraft {
		return validationf("invoice %s can only be deleted in draft, current status: %s", invoice.Number, invoice.Status)
	}

	invoice.Lines, err = fetchLines(ctx, tx, DocTypeInvoice, invoice.ID)
	if err != nil {
		return err
	}
	before, err := snapshot(invoice)
	if err != nil {
		return err
	}
	oldStatus := invoice.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeInvoice,
		DocumentID: invoice.ID,
		Action:     ActionDelete,
		OldStatus:  &oldStatus,
		ActorID:    actor.ID,
		Before:     before,
	}); err != nil {
		return err
	}

	// A deleted draft may have been generated from a sales order; release
	// the back-reference so the order can spawn a replacement.
	if _, err := tx.Exec(ctx, "UPDATE sales_orders SET generated_invoice_id = NULL WHERE generated_invoice_id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to release sales order reference: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM invoice_lines WHERE document_id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice lines: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM invoices WHERE id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", invoiceID, err)
	}
	return tx.Commit(ctx)
}

func (s *invoiceService) GetInvoice(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", invoiceID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invoice", invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", invoiceID, err)
	}

	managerID, err := projectManagerID(ctx, s.pool, invoice.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: invoice.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionView, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionView}
	}

	invoice.Lines, err = fetchLines(ctx, s.pool, DocTypeInvoice, invoice.ID)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, actor Actor, filter OrderFilter) ([]Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices WHERE 1=1"
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}

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
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

func fetchInvoiceForUpdateTx(ctx context.Context, tx pgx.Tx, invoiceID int) (*Invoice, error) {
	row := tx.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1 FOR UPDATE", invoiceID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invoice", invoiceID)
		}
		return nil, fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
	}
	return invoice, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.ProjectID, &inv.CustomerName, &inv.SalesOrderID, &inv.Notes, &inv.Status,
		&inv.Subtotal, &inv.TotalTax, &inv.GrandTotal, &inv.SubmittedBy, &inv.PostedAt, &inv.PaidAt,
		&inv.CreatedAt, &inv.UpdatedBy, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
