package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice bills a customer for project work: draft → posted → paid.
// Marking an invoice paid adds its grand total to the project's revenue.
type Invoice struct {
	ID           int
	Number       string
	ProjectID    int
	CustomerName string
	SalesOrderID *int
	Notes        *string
	Status       Status
	Subtotal     decimal.Decimal
	TotalTax     decimal.Decimal
	GrandTotal   decimal.Decimal
	SubmittedBy  int
	PostedAt     *time.Time
	PaidAt       *time.Time
	CreatedAt    time.Time
	UpdatedBy    int
	UpdatedAt    time.Time
	Lines        []DocumentLine
}

// InvoiceInput holds the caller-writable fields of an invoice.
type InvoiceInput struct {
	ProjectID    int
	CustomerName string
	Notes        *string
	Lines        []LineInput
}

// InvoiceService manages the invoice lifecycle.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, actor Actor, in InvoiceInput) (*Invoice, error)
	UpdateInvoice(ctx context.Context, actor Actor, invoiceID int, in InvoiceInput) (*Invoice, error)

	// PostInvoice transitions draft → posted.
	PostInvoice(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error)

	// MarkInvoicePaid transitions posted → paid and adds the grand total to
	// the project's revenue, exactly once.
	MarkInvoicePaid(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error)

	// DeleteInvoice removes a DRAFT invoice. Administrative override only.
	DeleteInvoice(ctx context.Context, actor Actor, invoiceID int) error

	GetInvoice(ctx context.Context, actor Actor, invoiceID int) (*Invoice, error)
	ListInvoices(ctx context.Context, actor Actor, filter OrderFilter) ([]Invoice, error)
}
