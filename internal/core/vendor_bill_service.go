package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const vendorBillColumns = `id, number, project_id, vendor_name, purchase_order_id, notes, status, subtotal,
	total_tax, grand_total, submitted_by, posted_at, paid_at, created_at, updated_by, updated_at`

type vendorBillService struct {
	pool *pgxpool.Pool
}

// NewVendorBillService constructs a VendorBillService backed by PostgreSQL.
func NewVendorBillService(pool *pgxpool.Pool) VendorBillService {
	return &vendorBillService{pool: pool}
}

func validateVendorBillInput(in VendorBillInput) error {
	if in.ProjectID == 0 {
		return validationf("vendor bill must reference a project")
	}
	if in.VendorName == "" {
		return validationf("vendor bill vendor name is required")
	}
	return nil
}

func (s *vendorBillService) CreateVendorBill(ctx context.Context, actor Actor, in VendorBillInput) (*VendorBill, error) {
	if err := validateVendorBillInput(in); err != nil {
		return nil, err
	}
	if !Allowed(actor, ActionCreate, nil) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionCreate}
	}

	bill, err := s.createOnce(ctx, actor, in)
	if IsConflict(err) {
		bill, err = s.createOnce(ctx, actor, in)
	}
	return bill, err
}

func (s *vendorBillService) createOnce(ctx context.Context, actor Actor, in VendorBillInput) (*VendorBill, error) {
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

	number, err := nextDocumentNumber(ctx, tx, DocTypeVendorBill, time.Now())
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO vendor_bills (number, project_id, vendor_name, notes, status, subtotal, total_tax, grand_total, submitted_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+vendorBillColumns,
		number, in.ProjectID, in.VendorName, in.Notes, string(StatusDraft),
		totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID)
	bill, err := scanVendorBill(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: fmt.Sprintf("document number %s already taken", number)}
		}
		return nil, fmt.Errorf("failed to insert vendor bill: %w", err)
	}

	if err := insertLinesTx(ctx, tx, DocTypeVendorBill, bill.ID, in.Lines, amounts); err != nil {
		return nil, err
	}
	bill.Lines, err = fetchLines(ctx, tx, DocTypeVendorBill, bill.ID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(bill)
	if err != nil {
		return nil, err
	}
	newStatus := bill.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeVendorBill,
		DocumentID: bill.ID,
		Action:     ActionCreate,
		NewStatus:  &newStatus,
		ActorID:    actor.ID,
		After:      after,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit vendor bill creation: %w", err)
	}
	return bill, nil
}

func (s *vendorBillService) UpdateVendorBill(ctx context.Context, actor Actor, billID int, in VendorBillInput) (*VendorBill, error) {
	if err := validateVendorBillInput(in); err != nil {
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

	bill, err := fetchVendorBillForUpdateTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if bill.Status != StatusDraft {
		return nil, validationf("vendor bill %s can only be edited in draft, current status: %s", bill.Number, bill.Status)
	}
	if in.ProjectID != bill.ProjectID {
		return nil, validationf("vendor bill %s cannot move to another project", bill.Number)
	}

	managerID, err := projectManagerID(ctx, tx, bill.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: bill.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionEdit, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionEdit}
	}

	bill.Lines, err = fetchLines(ctx, tx, DocTypeVendorBill, bill.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(bill)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE vendor_bills
		SET vendor_name = $1, notes = $2, subtotal = $3, total_tax = $4, grand_total = $5,
		    updated_by = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+vendorBillColumns,
		in.VendorName, in.Notes, totals.Subtotal, totals.TotalTax, totals.GrandTotal, actor.ID, billID)
	updated, err := scanVendorBill(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update vendor bill %d: %w", billID, err)
	}

	if err := replaceLinesTx(ctx, tx, DocTypeVendorBill, billID, in.Lines, amounts); err != nil {
		return nil, err
	}
	updated.Lines, err = fetchLines(ctx, tx, DocTypeVendorBill, billID)
	if err != nil {
		return nil, err
	}

	after, err := snapshot(updated)
	if err != nil {
		return nil, err
	}
	draft := StatusDraft
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeVendorBill,
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
		return nil, fmt.Errorf("failed to commit vendor bill update: %w", err)
	}
	return updated, nil
}

func (s *vendorBillService) PostVendorBill(ctx context.Context, actor Actor, billID int) (*VendorBill, error) {
	return s.transition(ctx, actor, billID, ActionPost, StatusPosted)
}

func (s *vendorBillService) MarkVendorBillPaid(ctx context.Context, actor Actor, billID int) (*VendorBill, error) {
	return s.transition(ctx, actor, billID, ActionPay, StatusPaid)
}

// transition runs one status change as a single atomic unit: graph check,
// policy check, ledger effect, row update, history append.
func (s *vendorBillService) transition(ctx context.Context, actor Actor, billID int, action Action, target Status) (*VendorBill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := fetchVendorBillForUpdateTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(DocTypeVendorBill, bill.Status, target); err != nil {
		return nil, err
	}

	managerID, err := projectManagerID(ctx, tx, bill.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: bill.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, action, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: action}
	}

	bill.Lines, err = fetchLines(ctx, tx, DocTypeVendorBill, bill.ID)
	if err != nil {
		return nil, err
	}
	before, err := snapshot(bill)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch target {
	case StatusPosted:
		bill.PostedAt = &now
	case StatusPaid:
		bill.PaidAt = &now
		if err := addProjectCostTx(ctx, tx, bill.ProjectID, bill.GrandTotal); err != nil {
			return nil, err
		}
	}

	oldStatus := bill.Status
	bill.Status = target
	bill.UpdatedBy = actor.ID
	bill.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE vendor_bills
		SET status = $1, posted_at = $2, paid_at = $3, updated_by = $4, updated_at = $5
		WHERE id = $6
	`, string(bill.Status), bill.PostedAt, bill.PaidAt, bill.UpdatedBy, bill.UpdatedAt, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist vendor bill transition: %w", err)
	}

	after, err := snapshot(bill)
	if err != nil {
		return nil, err
	}
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeVendorBill,
		DocumentID: bill.ID,
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
		return nil, fmt.Errorf("failed to commit vendor bill transition: %w", err)
	}
	return bill, nil
}

func (s *vendorBillService) DeleteVendorBill(ctx context.Context, actor Actor, billID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := fetchVendorBillForUpdateTx(ctx, tx, billID)
	if err != nil {
		return err
	}
	if !Allowed(actor, ActionDelete, nil) {
		return &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionDelete}
	}
	if bill.Status != StatusDraft {
		return validationf("vendor bill %s can only be deleted in draft, current status: %s", bill.Number, bill.Status)
	}

	bill.Lines, err = fetchLines(ctx, tx, DocTypeVendorBill, bill.ID)
	if err != nil {
		return err
	}
	before, err := snapshot(bill)
	if err != nil {
		return err
	}
	oldStatus := bill.Status
	if err := appendHistoryTx(ctx, tx, HistoryRecord{
		DocType:    DocTypeVendorBill,
		DocumentID: bill.ID,
		Action:     ActionDelete,
		OldStatus:  &oldStatus,
		ActorID:    actor.ID,
		Before:     before,
	}); err != nil {
		return err
	}

	// A deleted draft may have been generated from a purchase order; release
	// the back-reference so the order can spawn a replacement.
	if _, err := tx.Exec(ctx, "UPDATE purchase_orders SET generated_bill_id = NULL WHERE generated_bill_id = $1", billID); err != nil {
		return fmt.Errorf("failed to release purchase order reference: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM vendor_bill_lines WHERE document_id = $1", billID); err != nil {
		return fmt.Errorf("failed to delete vendor bill lines: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM vendor_bills WHERE id = $1", billID); err != nil {
		return fmt.Errorf("failed to delete vendor bill %d: %w", billID, err)
	}
	return tx.Commit(ctx)
}

func (s *vendorBillService) GetVendorBill(ctx context.Context, actor Actor, billID int) (*VendorBill, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+vendorBillColumns+" FROM vendor_bills WHERE id = $1", billID)
	bill, err := scanVendorBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("vendor bill", billID)
		}
		return nil, fmt.Errorf("failed to fetch vendor bill %d: %w", billID, err)
	}

	managerID, err := projectManagerID(ctx, s.pool, bill.ProjectID)
	if err != nil {
		return nil, err
	}
	scope := &DocumentScope{SubmittedBy: bill.SubmittedBy, ProjectManagerID: managerID}
	if !Allowed(actor, ActionView, scope) {
		return nil, &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionView}
	}

	bill.Lines, err = fetchLines(ctx, s.pool, DocTypeVendorBill, bill.ID)
	if err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *vendorBillService) ListVendorBills(ctx context.Context, actor Actor, filter OrderFilter) ([]VendorBill, error) {
	query := "SELECT " + vendorBillColumns + " FROM vendor_bills WHERE 1=1"
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
		return nil, fmt.Errorf("failed to query vendor bills: %w", err)
	}
	defer rows.Close()

	var bills []VendorBill
	for rows.Next() {
		bill, err := scanVendorBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor bill: %w", err)
		}
		bills = append(bills, *bill)
	}
	return bills, rows.Err()
}

func fetchVendorBillForUpdateTx(ctx context.Context, tx pgx.Tx, billID int) (*VendorBill, error) {
	row := tx.QueryRow(ctx, "SELECT "+vendorBillColumns+" FROM vendor_bills WHERE id = $1 FOR UPDATE", billID)
	bill, err := scanVendorBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("vendor bill", billID)
		}
		return nil, fmt.Errorf("failed to lock vendor bill %d: %w", billID, err)
	}
	return bill, nil
}

func scanVendorBill(row pgx.Row) (*VendorBill, error) {
	var b VendorBill
	err := row.Scan(&b.ID, &b.Number, &b.ProjectID, &b.VendorName, &b.PurchaseOrderID, &b.Notes, &b.Status,
		&b.Subtotal, &b.TotalTax, &b.GrandTotal, &b.SubmittedBy, &b.PostedAt, &b.PaidAt,
		&b.CreatedAt, &b.UpdatedBy, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
