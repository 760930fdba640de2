package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const purchaseOrderColumns = `id, number, project_id, vendor_name, notes, status, subtotal, total_tax,
	grand_total, submitted_by, confirmed_at, generated_bill_id, created_at, updated_by, updated_at`

type purchaseOrderService struct {
	pool *pgxpool.Pool
}

// NewPurchaseOrderService constructs a PurchaseOrderService backed by PostgreSQL.
func NewPurchaseOrderService(pool *pgxpool.Pool) PurchaseOrderService {
	return &purchaseOrderService{pool: pool}
}

func validatePurchaseOrderInput(in PurchaseOrderInput) error {
	if in.ProjectID == 0 {
		return validationf("purchase order must reference a project")
	}
	if in.VendorName == "" {
		return validationf("purchase order vendor name is required")
	}
	return nil
}

func (s *purchaseOrderService) CreatePurchaseOrder(ctx context.Context, actor Actor, in PurchaseOrderInput) (*PurchaseOrder, error) {
	if err := validatePurchaseOrderInput(in); err != nil {
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

func (s *purchaseOrderService) createOnce(ctx context.Context, actor Actor, in PurchaseOrderInput) (*PurchaseOrder, error) {
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

	number, err := nextDocumentNumber(ctx, tx, DocTypePurchaseOrder, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, project_id, vendor_name, notes, status, subtotal, total_tax, grand_total, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+purchaseOrderColumns,
		number, in.ProjectID, in.VendorName, in.Notes, string(StatusDraft),
		totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID)
	order, err := scanPurchaseOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert purchase order: %w", err)
	}

	if err := insertLinesTx(ctx, tx, DocTypePurchaseOrder, order.ID, in.Lines, amounts); err != nil {
		return nil, err
	}
	order.Lines, err = fetchLines(ctx, tx, DocTypePurchaseOrder, order.ID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(order)
	if err != nil {
		return nil, err
	}
	newStatus := order.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypePurchaseOrder,
		DocumentID: order.ID,
		Action:     ActionCreate,
		NewStatus:  &newStatus,
		ActorID:    actor.ID,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase order creation: %w", err)
	}
	return order, nil
}

func (s *purchaseOrderService) UpdatePurchaseOrder(ctx context.Context, actor Actor, orderID int, in PurchaseOrderInput) (*PurchaseOrder, error) {
	if err := validatePurchaseOrderInput(in); err != nil {
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

	order, err := fetchPurchaseOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusDraft {
		return nil, validationf("purchase order %s can only be edited in draft, current status: %s", order.Number, order.Status)
	}
	if in.ProjectID != order.ProjectID {
		return nil, validationf("purchase order %s cannot move to another project", order.Number)
	}

	managerID, err := projectManagerID(ctx, tx, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionEdit, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionEdit}
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypePurchaseOrder, order.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(order)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE purchase_orders
		SET vendor_name = $1, notes = $2, subtotal = $3, total_tax = $4, grand_total = $5,
		    updated_by = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+purchaseOrderColumns,
		in.VendorName, in.Notes, totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID, orderID)
	updated, err := scanPurchaseOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase order %d: %w", orderID, err)
	}

	if err := replaceLinesTx(ctx, tx, DocTypePurchaseOrder, orderID, in.Lines, amounts); err != nil {
		return nil, err
	}
	updated.Lines, err = fetchLines(ctx, tx, DocTypePurchaseOrder, orderID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(updated)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypePurchaseOrder,
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
		return nil, fmt.Errorf("failed to commit purchase order update: %w", err)
	}
	return updated, nil
}

func (s *purchaseOrderService) ConfirmPurchaseOrder(ctx context.Context, actor Actor, orderID int) (*PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := fetchPurchaseOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(DocTypePurchaseOrder, order.Status, StatusConfirmed); err != nil {
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

	order.Lines, err = fetchLines(ctx, tx, DocTypePurchaseOrder, order.ID)
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
		UPDATE purchase_orders
		SET status = $1, confirmed_at = $2, updated_by = $3, updated_at = $4
		WHERE id = $5
	`, string(order.Status), order.ConfirmedAt, order.UpdatedBy, order.UpdatedAt, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm purchase order %d: %w", orderID, err)
	}

	after, err := snapshot(order)
	if err != nil {
		return nil, err
	}
	confirmed := StatusConfirmed
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypePurchaseOrder,
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
		return nil, fmt.Errorf("failed to commit purchase order confirmation: %w", err)
	}
	return order, nil
}

func (s *purchaseOrderService) GenerateVendorBill(ctx context.Context, actor Actor, orderID int) (*VendorBill, error) {
	bill, err := s.generateVendorBillOnce(ctx, actor, orderID)
	if IsConflict(err) && bill == nil {
		bill, err = s.generateVendorBillOnce(ctx, actor, orderID)
	}
	return bill, err
}

func (s *purchaseOrderService) generateVendorBillOnce(ctx context.Context, actor Actor, orderID int) (*VendorBill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := fetchPurchaseOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusConfirmed {
		return nil, validationf("purchase order %s must be confirmed before billing, current status: %s", order.Number, order.Status)
	}
	if order.GeneratedBillID != nil {
		return nil, validationf("purchase order %s already has vendor bill %d", order.Number, *order.GeneratedBillID)
	}

	managerID, err := projectManagerID(ctx, tx, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionGenerate, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionGenerate}
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypePurchaseOrder, order.ID)
	if err != nil {
		return nil, err
	}

	// Recompute from the copied lines; the bill's totals must exactly
	// match the order's.
	inputs := lineInputs(order.Lines)
	amounts, totals, err := ComputeLines(inputs)
	if err != nil {
		return nil, err
	}

	number, err := nextDocumentNumber(ctx, tx, DocTypeVendorBill, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO vendor_bills (number, project_id, vendor_name, purchase_order_id, notes, status, subtotal, total_tax, grand_total, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+vendorBillColumns,
		number, order.ProjectID, order.VendorName, order.ID, order.Notes, string(StatusDraft),
		totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID)
	bill, err := scanVendorBill(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert vendor bill: %w", err)
	}

	if err := insertLinesTx(ctx, tx, DocTypeVendorBill, bill.ID, inputs, amounts); err != nil {
		return nil, err
	}
	bill.Lines, err = fetchLines(ctx, tx, DocTypeVendorBill, bill.ID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE purchase_orders SET generated_bill_id = $1, updated_by = $2, updated_at = NOW() WHERE id = $3
	`, bill.ID, actor.ID, order.ID); err != nil {
		return nil, fmt.Errorf("failed to link vendor bill to purchase order %d: %w", orderID, err)
	}

	billAfter, err := snapshot(bill)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeVendorBill,
		DocumentID: bill.ID,
		Action:     ActionCreate,
		NewStatus:  &draft,
		ActorID:    actor.ID,
		After:      billAfter,
	}); err != nil {
		return nil, err
	}
	confirmed := order.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypePurchaseOrder,
		DocumentID: order.ID,
		Action:     ActionGenerate,
		OldStatus:  &confirmed,
		NewStatus:  &confirmed,
		ActorID:    actor.ID,
		After:      billAfter,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit vendor bill generation: %w", err)
	}
	return bill, nil
}

func (s *purchaseOrderService) DeletePurchaseOrder(ctx context.Context, actor Actor, orderID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := fetchPurchaseOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !Allowed(actor, ActionDelete, nil) {
		return &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionDelete}
	}
	if order.Status != StatusDraft {
		return validationf("purchase order %s can only be deleted in draft, current status: %s", order.Number, order.Status)
	}

	order.Lines, err = fetchLines(ctx, tx, DocTypePurchaseOrder, order.ID)
	if err != nil {
		return err
	}
	before, err := snapshot(order)
	if err != nil {
		return err
	}
	oldStatus := order.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypePurchaseOrder,
		DocumentID: order.ID,
		Action:     ActionDelete,
		OldStatus:  &oldStatus,
		ActorID:    actor.ID,
		Before:     before,
	}); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM purchase_order_lines WHERE document_id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete purchase order lines: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM purchase_orders WHERE id = $1", orderID); err != nil {
		return fmt.Errorf("failed to delete purchase order %d: %w", orderID, err)
	}
	return tx.Commit(ctx)
}

func (s *purchaseOrderService) GetPurchaseOrder(ctx context.Context, actor Actor, orderID int) (*PurchaseOrder, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+purchaseOrderColumns+" FROM purchase_orders WHERE id = $1", orderID)
	order, err := scanPurchaseOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("purchase order", orderID)
		}
		return nil, fmt.Errorf("failed to fetch purchase order %d: %w", orderID, err)
	}

	managerID, err := projectManagerID(ctx, s.pool, order.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: order.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionView, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionView}
	}

	order.Lines, err = fetchLines(ctx, s.pool, DocTypePurchaseOrder, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *purchaseOrderService) ListPurchaseOrders(ctx context.Context, actor Actor, filter OrderFilter) ([]PurchaseOrder, error) {
	query := "SELECT " + purchaseOrderColumns + " FROM purchase_orders WHERE 1=1"
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
		return nil, fmt.Errorf("failed to query purchase orders: %w", err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		order, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func fetchPurchaseOrderForUpdateTx(ctx context.Context, tx pgx.Tx, orderID int) (*PurchaseOrder, error) {
	row := tx.QueryRow(ctx, "SELECT "+purchaseOrderColumns+" FROM purchase_orders WHERE id = $1 FOR UPDATE", orderID)
	order, err := scanPurchaseOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("purchase order", orderID)
		}
		return nil, fmt.Errorf("failed to lock purchase order %d: %w", orderID, err)
	}
	return order, nil
}

func scanPurchaseOrder(row pgx.Row) (*PurchaseOrder, error) {
	var o PurchaseOrder
	err := row.Scan(&o.ID, &o.Number, &o.ProjectID, &o.VendorName, &o.Notes, &o.Status, &o.Subtotal, &o.TotalTax,
		&o.GrandTotal, &o.SubmittedBy, &o.ConfirmedAt, &o.GeneratedBillID, &o.CreatedAt, &o.UpdatedBy, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
