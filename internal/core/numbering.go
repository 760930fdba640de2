package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// documentTable maps each document type to the table holding its records.
// Table names are fixed constants, never caller input.
var documentTable = map[DocType]string{
	DocTypeExpense:       "expenses",
	DocTypePurchaseOrder: "purchase_orders",
	DocTypeSalesOrder:    "sales_orders",
	DocTypeInvoice:       "invoices",
	DocTypeVendorBill:    "vendor_bills",
}

// FormatPeriod renders the year-month segment of a document number.
func FormatPeriod(t time.Time) string {
	return t.Format("200601")
}

// nextDocumentNumber generates the next number for dt in the given period,
// formatted PREFIX-YYYYMM-NNN. It scans the current maximum inside the
// caller's transaction, so the read and the subsequent insert share one
// atomic scope. Two concurrent creators can still read the same maximum;
// the unique constraint on the number column turns that race into a
// unique violation the service retries once.
func nextDocumentNumber(ctx context.Context, q pgxQuerier, dt DocType, period time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", numberPrefix[dt], FormatPeriod(period))

	var last string
	query := fmt.Sprintf(
		"SELECT number FROM %s WHERE number LIKE $1 ORDER BY number DESC LIMIT 1",
		documentTable[dt],
	)
	err := q.QueryRow(ctx, query, prefix+"%").Scan(&last)
	seq := 1
	switch {
	case err == nil:
		suffix := strings.TrimPrefix(last, prefix)
		n, convErr := strconv.Atoi(suffix)
		if convErr != nil {
			return "", fmt.Errorf("malformed document number %q: %w", last, convErr)
		}
		seq = n + 1
	case errors.Is(err, pgx.ErrNoRows):
		// first document of the period
	default:
		return "", fmt.Errorf("failed to scan last document number: %w", err)
	}

	return fmt.Sprintf("%s%03d", prefix, seq), nil
}
