package core

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineInput is a raw line as supplied by a caller. Derived amounts are
// never read from it; the calculator recomputes them on every write.
type LineInput struct {
	TaskID      *int
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	TaxPercent  decimal.Decimal // zero value means untaxed
}

// LineAmounts holds the derived amounts for one line.
type LineAmounts struct {
	LineTotal      decimal.Decimal
	TaxAmount      decimal.Decimal
	LineGrandTotal decimal.Decimal
}

// Totals holds the document-level aggregates over all lines.
type Totals struct {
	Subtotal   decimal.Decimal
	TotalTax   decimal.Decimal
	GrandTotal decimal.Decimal
}

// ComputeLines validates raw lines and derives per-line and document
// totals. The arithmetic is pure decimal, so recomputing from identical
// inputs always yields identical results.
//
//	line_total       = quantity * unit_price
//	tax_amount       = line_total * tax_percent / 100
//	line_grand_total = line_total + tax_amount
func ComputeLines(lines []LineInput) ([]LineAmounts, Totals, error) {
	if len(lines) == 0 {
		return nil, Totals{}, validationf("document must have at least one line")
	}

	amounts := make([]LineAmounts, 0, len(lines))
	totals := Totals{Subtotal: decimal.Zero, TotalTax: decimal.Zero, GrandTotal: decimal.Zero}

	for i, in := range lines {
		if !in.Quantity.IsPositive() {
			return nil, Totals{}, validationf("line %d: quantity must be > 0, got %s", i+1, in.Quantity)
		}
		if !in.UnitPrice.IsPositive() {
			return nil, Totals{}, validationf("line %d: unit price must be > 0, got %s", i+1, in.UnitPrice)
		}
		if in.TaxPercent.IsNegative() {
			return nil, Totals{}, validationf("line %d: tax percent must be >= 0, got %s", i+1, in.TaxPercent)
		}

		lineTotal := in.Quantity.Mul(in.UnitPrice)
		taxAmount := lineTotal.Mul(in.TaxPercent).Div(hundred)
		amounts = append(amounts, LineAmounts{
			LineTotal:      lineTotal,
			TaxAmount:      taxAmount,
			LineGrandTotal: lineTotal.Add(taxAmount),
		})

		totals.Subtotal = totals.Subtotal.Add(lineTotal)
		totals.TotalTax = totals.TotalTax.Add(taxAmount)
	}

	totals.GrandTotal = totals.Subtotal.Add(totals.TotalTax)
	return amounts, totals, nil
}
