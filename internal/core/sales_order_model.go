package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SalesOrder is an agreement to deliver services to a customer under a
// project. Confirmation is terminal in the order lifecycle; a confirmed
// order's lines can be copied onto a customer invoice.
type SalesOrder struct {
	ID                 int
	Number             string
	ProjectID          int
	CustomerName       string
	Notes              *string
	Status             Status
	Subtotal           decimal.Decimal
	TotalTax           decimal.Decimal
	GrandTotal         decimal.Decimal
	SubmittedBy        int
	ConfirmedAt        *time.Time
	GeneratedInvoiceID *int
	CreatedAt          time.Time
	UpdatedBy          int
	UpdatedAt          time.Time
	Lines              []DocumentLine
}

// SalesOrderInput holds the caller-writable fields of a sales order.
type SalesOrderInput struct {
	ProjectID    int
	CustomerName string
	Notes        *string
	Lines        []LineInput
}

// SalesOrderService manages the sales order lifecycle:
// draft → confirmed, then invoice generation.
type SalesOrderService interface {
	CreateSalesOrder(ctx context.Context, actor Actor, in SalesOrderInput) (*SalesOrder, error)
	UpdateSalesOrder(ctx context.Context, actor Actor, orderID int, in SalesOrderInput) (*SalesOrder, error)

	// ConfirmSalesOrder transitions draft → confirmed. No ledger effect;
	// confirmation only unlocks invoice generation.
	ConfirmSalesOrder(ctx context.Context, actor Actor, orderID int) (*SalesOrder, error)

	// GenerateInvoice copies a confirmed order's lines onto a new DRAFT
	// invoice whose totals exactly match the order's. Each order spawns at
	// most one invoice.
	GenerateInvoice(ctx context.Context, actor Actor, orderID int) (*Invoice, error)

	// DeleteSalesOrder removes a DRAFT order. Administrative override only.
	DeleteSalesOrder(ctx context.Context, actor Actor, orderID int) error

	GetSalesOrder(ctx context.Context, actor Actor, orderID int) (*SalesOrder, error)
	ListSalesOrders(ctx context.Context, actor Actor, filter OrderFilter) ([]SalesOrder, error)
}
