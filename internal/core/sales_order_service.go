package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const salesOrderColumns = `id, number, project_id, customer_name, notes, status, subtotal, total_tax,
	grand_total, submitted_by, confirmed_at, generated_invoice_id, created_at, updated_by, updated_at`

type salesOrderService struct {
	pool *pgxpool.Pool
}

// NewSalesOrderService constructs a SalesOrderService backed by PostgreSQL.
func NewSalesOrderService(pool *pgxpool.Pool) SalesOrderService {
	return &salesOrderService{pool: pool}
}

func validateSalesOrderInput(in SalesOrderInput) error {
	if in.ProjectID == 0 {
		return validationf("sales order must reference a project")
	}
	if in.CustomerName == "" {
		return validationf("sales order customer name is required")
	}
	return nil
}

func (s *salesOrderService) CreateSalesOrder(ctx context.Context, actor Actor, in SalesOrderInput) (*SalesOrder, error) {
	if err := validateSalesOrderInput(in); err != nil {
		return nil, err
	}
	if !Allowed(actor, ActionCreate, nil) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionCreate}
	}

	order, err := s.createOnce(ctx, actor, in)
	if IsConflict(err) {
		order, err = s.createOnce(ctx, actor, in)
	}
	return order, err
}

func (s *salesOrderService) createOnce(ctx context.Context, actor Actor, in SalesOrderInput) (*SalesOrder, error) {
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

	number, err := nextDocumentNumber(ctx, tx, DocTypeSalesOrder, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO sales_orders (number, project_id, customer_name, notes, status, subtotal, total_tax, grand_total, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+salesOrderColumns,
		number, in.ProjectID, in.CustomerName, in.Notes, string(StatusDraft),
		totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID)
	order, err := scanSalesOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert sales order: %w", err)
	}

	if err := insertLinesTx(ctx, tx, DocTypeSalesOrder, order.ID, in.Lines, amounts); err != nil {
		return nil, err
	}
	order.Lines, err = fetchLines(ctx, tx, DocTypeSalesOrder, order.ID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(order)
	if err != nil {
		return nil, err
	}
	newStatus := order.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeSalesOrder,
		DocumentID: order.ID,
		Action:     ActionCreate,
		NewStatus:  &newStatus,
		ActorID:    actor.ID,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sales order creation: %w", err)
	}
	return order, nil
}

func (s *salesOrderService) UpdateSalesOrder(ctx context.Context, actor Actor, orderID int, in SalesOrderInput) (*SalesOrder, error) {
	if err := validateSalesOrderInput(in); err != nil {
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

	order, err := fetchSalesOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusDraft {
		return nil, validationf("sales order %s can only be edited in draft, current status: %s", order.Number, order.Status)
	}
	if in.ProjectID != order.ProjectID {
		return nil, validationf("sales order %s cannot move to another project", order.Number)
	}

	managerID, err := projectManagerID(ctx, tx, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionEdit, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionEdit}
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypeSalesOrder, order.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(order)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE sales_orders
		SET customer_name = $1, notes = $2, subtotal = $3, total_tax = $4, grand_total = $5,
		    updated_by = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+salesOrderColumns,
		in.CustomerName, in.Notes, totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID, orderID)
	updated, err := scanSalesOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update sales order %d: %w", orderID, err)
	}

	if err := replaceLinesTx(ctx, tx, DocTypeSalesOrder, orderID, in.Lines, amounts); err != nil {
		return nil, err
	}
	updated.Lines, err = fetchLines(ctx, tx, DocTypeSalesOrder, orderID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(updated)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeSalesOrder,
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
		return nil, fmt.Errorf("failed to commit sales order update: %w", err)
	}
	return updated, nil
}

func (s *salesOrderService) ConfirmSalesOrder(ctx context.Context, actor Actor, orderID int) (*SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := fetchSalesOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(DocTypeSalesOrder, order.Status, StatusConfirmed); err != nil {
		return nil, err
	}

	managerID, err := projectManagerID(ctx, tx, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionConfirm, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionConfirm}
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypeSalesOrder, order.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(order)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	oldStatus := order.Status
	order.Status = StatusConfirmed
	order.ConfirmedAt = &now
	order.UpdatedBy = actor.ID
	order.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE sales_orders
		SET status = $1, confirmed_at = $2, updated_by = $3, updated_at = $4
		WHERE id = $5
	`, string(order.Status), order.ConfirmedAt, order.UpdatedBy, order.UpdatedAt, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm sales order %d: %w", orderID, err)
	}

	after, err := snapshot(order)
	if err != nil {
		return nil, err
	}
	confirmed := StatusConfirmed
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeSalesOrder,
		DocumentID: order.ID,
		Action:     ActionConfirm,
		OldStatus:  &oldStatus,
		NewStatus:  &confirmed,
		ActorID:    actor.ID,
		Before:     before,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sales order confirmation: %w", err)
	}
	return order, nil
}

func (s *salesOrderService) GenerateInvoice(ctx context.Context, actor Actor, orderID int) (*Invoice, error) {
	invoice, err := s.generateInvoiceOnce(ctx, actor, orderID)
	if IsConflict(err) && invoice == nil {
		invoice, err = s.generateInvoiceOnce(ctx, actor, orderID)
	}
	return invoice, err
}

func (s *salesOrderService) generateInvoiceOnce(ctx context.Context, actor Actor, orderID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := fetchSalesOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusConfirmed {
		return nil, validationf("sales order %s must be confirmed before invoicing, current status: %s", order.Number, order.Status)
	}
	if order.GeneratedInvoiceID != nil {
		return nil, validationf("sales order %s already has invoice %d", order.Number, *order.GeneratedInvoiceID)
	}

	managerID, err := projectManagerID(ctx, tx, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionGenerate, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionGenerate}
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypeSalesOrder, order.ID)
	if err != nil {
		return nil, err
	}

	inputs := lineInputs(order.Lines)
	amounts, totals, err := ComputeLines(inputs)
	if err != nil {
		return nil, err
	}

	number, err := nextDocumentNumber(ctx, tx, DocTypeInvoice, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO invoices (number, project_id, customer_name, sales_order_id, notes, status, subtotal, total_tax, grand_total, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+invoiceColumns,
		number, order.ProjectID, order.CustomerName, order.ID, order.Notes, string(StatusDraft),
		totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := insertLinesTx(ctx, tx, DocTypeInvoice, invoice.ID, inputs, amounts); err != nil {
		return nil, err
	}
	invoice.Lines, err = fetchLines(ctx, tx, DocTypeInvoice, invoice.ID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sales_orders SET generated_invoice_id = $1, updated_by = $2, updated_at = NOW() WHERE id = $3
	`, invoice.ID, actor.ID, order.ID); err != nil {
		return nil, fmt.Errorf("failed to link invoice to sales order %d: %w", orderID, err)
	}

	invoiceAfter, err := snapshot(invoice)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeInvoice,
		DocumentID: invoice.ID,
		Action:     ActionCreate,
		NewStatus:  &draft,
		ActorID:    actor.ID,
		After:      invoiceAfter,
	}); err != nil {
		return nil, err
	}
	confirmed := order.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeSalesOrder,
		DocumentID: order.ID,
		Action:     ActionGenerate,
		OldStatus:  &confirmed,
		NewStatus:  &confirmed,
		ActorID:    actor.ID,
		After:      invoiceAfter,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice generation: %w", err)
	}
	return invoice, nil
}

func (s *salesOrderService) DeleteSalesOrder(ctx context.Context, actor Actor, orderID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := fetchSalesOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !Allowed(actor, ActionDelete, nil) {
		return &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionDelete}
	}
	if order.Status != StatusDraft {
		return validationf("sales order %s can only be deleted in draft, current status: %s", order.Number, order.Status)
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypeSalesOrder, order.ID)
	if err != nil {
		return err
	}
	before, err := snapshot(order)
	if err != nil {
		return err
	}
	oldStatus := order.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeSalesOrder,
		DocumentID: order.ID,
		Action:     ActionDelete,
		OldStatus:  &oldStatus,
		ActorID:    actor.ID,
		Before:     before,
	}); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM sales_order_lines WHERE document_id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete sales order lines: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM sales_orders WHERE id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete sales order %d: %w", orderID, err)
	}
	return tx.Commit(ctx)
}

func (s *salesOrderService) GetSalesOrder(ctx context.Context, actor Actor, orderID int) (*SalesOrder, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+salesOrderColumns+" FROM sales_orders WHERE id = $1", orderID)
	order, err := scanSalesOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("sales order", orderID)
		}
		return nil, fmt.Errorf("failed to fetch sales order %d: %w", orderID, err)
	}

	managerID, err := projectManagerID(ctx, s.pool, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionView, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionView}
	}

	order.Lines, err = fetchLines(ctx, s.pool, DocTypeSalesOrder, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *salesOrderService) ListSalesOrders(ctx context.Context, actor Actor, filter OrderFilter) ([]SalesOrder, error) {
	query := "SELECT " + salesOrderColumns + " FROM sales_orders WHERE 1=1"
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
		return nil, fmt.Errorf("failed to query sales orders: %w", err)
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		order, err := scanSalesOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sales order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func fetchSalesOrderForUpdateTx(ctx context.Context, tx pgx.Tx, orderID int) (*SalesOrder, error) {
	row := tx.QueryRow(ctx, "SELECT "+salesOrderColumns+" FROM sales_orders WHERE id = $1 FOR UPDATE", orderID)
	order, err := scanSalesOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("sales order", orderID)
		}
		return nil, fmt.Errorf("failed to lock sales order %d: %w", orderID, err)
	}
	return order, nil
}

func scanSalesOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(&o.ID, &o.Number, &o.ProjectID, &o.CustomerName, &o.Notes, &o.Status, &o.Subtotal, &o.TotalTax,
		&o.GrandTotal, &o.SubmittedBy, &o.ConfirmedAt, &o.GeneratedInvoiceID, &o.CreatedAt, &o.UpdatedBy, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
