package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// lineTable maps each lined document type to its line-items table. All four
// tables share one column layout.
var lineTable = map[DocType]string{
	DocTypePurchaseOrder: "purchase_order_lines",
	DocTypeSalesOrder:    "sales_order_lines",
	DocTypeInvoice:       "invoice_lines",
	DocTypeVendorBill:    "vendor_bill_lines",
}

// DocumentLine is one stored quantity/price/tax row of an order, bill or
// invoice. The derived amounts are recomputed on every write and never
// taken from a caller.
type DocumentLine struct {
	ID             int
	DocumentID     int
	LineNumber     int
	TaskID         *int
	Description    string
	Quantity       decimal.Decimal
	Unit           string
	UnitPrice      decimal.Decimal
	TaxPercent     decimal.Decimal
	LineTotal      decimal.Decimal
	TaxAmount      decimal.Decimal
	LineGrandTotal decimal.Decimal
}

// Input converts a stored line back into calculator input, used when a
// confirmed order's lines are copied onto a spawned bill or invoice.
func (l DocumentLine) Input() LineInput {
	return LineInput{
		TaskID:      l.TaskID,
		Description: l.Description,
		Quantity:    l.Quantity,
		Unit:        l.Unit,
		UnitPrice:   l.UnitPrice,
		TaxPercent:  l.TaxPercent,
	}
}

func lineInputs(lines []DocumentLine) []LineInput {
	inputs := make([]LineInput, len(lines))
	for i, l := range lines {
		inputs[i] = l.Input()
	}
	return inputs
}

// insertLinesTx writes computed lines for a document inside the caller's
// transaction. inputs and amounts must be parallel, as returned by
// ComputeLines.
func insertLinesTx(ctx context.Context, tx pgx.Tx, dt DocType, documentID int, inputs []LineInput, amounts []LineAmounts) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, line_number, task_id, description, quantity, unit, unit_price, tax_percent, line_total, tax_amount, line_grand_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, lineTable[dt])

	for i, in := range inputs {
		a := amounts[i]
		_, err := tx.Exec(ctx, query,
			documentID, i+1, in.TaskID, in.Description, in.Quantity, in.Unit,
			in.UnitPrice, in.TaxPercent, a.LineTotal, a.TaxAmount, a.LineGrandTotal)
		if err != nil {
			return fmt.Errorf("failed to insert %s line %d: %w", dt, i+1, err)
		}
	}
	return nil
}

// replaceLinesTx rewrites all lines of a draft document.
func replaceLinesTx(ctx context.Context, tx pgx.Tx, dt DocType, documentID int, inputs []LineInput, amounts []LineAmounts) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", lineTable[dt])
	if _, err := tx.Exec(ctx, query, documentID); err != nil {
		return fmt.Errorf("failed to clear %s lines: %w", dt, err)
	}
	return insertLinesTx(ctx, tx, dt, documentID, inputs, amounts)
}

// fetchLines reads all lines for a document in line order. Works with
// either the pool or an open transaction.
func fetchLines(ctx context.Context, q pgxRowQuerier, dt DocType, documentID int) ([]DocumentLine, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, line_number, task_id, description, quantity, unit, unit_price, tax_percent, line_total, tax_amount, line_grand_total
		FROM %s
		WHERE document_id = $1
		ORDER BY line_number
	`, lineTable[dt])

	rows, err := q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s lines: %w", dt, err)
	}
	defer rows.Close()

	var lines []DocumentLine
	for rows.Next() {
		var l DocumentLine
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineNumber, &l.TaskID, &l.Description, &l.Quantity,
			&l.Unit, &l.UnitPrice, &l.TaxPercent, &l.LineTotal, &l.TaxAmount, &l.LineGrandTotal); err != nil {
			return nil, fmt.Errorf("failed to scan %s line: %w", dt, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
