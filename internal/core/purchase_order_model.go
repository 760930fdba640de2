package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is a commitment to buy from a vendor on behalf of a
// project. Confirmation is terminal in the order lifecycle; a confirmed
// order's lines can be copied onto a vendor bill.
type PurchaseOrder struct {
	ID              int
	Number          string
	ProjectID       int
	VendorName      string
	Notes           *string
	Status          Status
	Subtotal        decimal.Decimal
	TotalTax        decimal.Decimal
	GrandTotal      decimal.Decimal
	SubmittedBy     int
	ConfirmedAt     *time.Time
	GeneratedBillID *int
	CreatedAt       time.Time
	UpdatedBy       int
	UpdatedAt       time.Time
	Lines           []DocumentLine
}

// PurchaseOrderInput holds the caller-writable fields of a purchase order.
type PurchaseOrderInput struct {
	ProjectID  int
	VendorName string
	Notes      *string
	Lines      []LineInput
}

// OrderFilter narrows order and bill/invoice listings. Nil fields are ignored.
type OrderFilter struct {
	ProjectID *int
	Status    *Status
}

// PurchaseOrderService manages the purchase order lifecycle:
// draft → confirmed, then vendor bill generation.
type PurchaseOrderService interface {
	// CreatePurchaseOrder creates a DRAFT order with computed line totals
	// and a fresh document number.
	CreatePurchaseOrder(ctx context.Context, actor Actor, in PurchaseOrderInput) (*PurchaseOrder, error)

	// UpdatePurchaseOrder rewrites a DRAFT order's fields and lines;
	// all amounts are recomputed.
	UpdatePurchaseOrder(ctx context.Context, actor Actor, orderID int, in PurchaseOrderInput) (*PurchaseOrder, error)

	// ConfirmPurchaseOrder transitions draft → confirmed. No ledger effect;
	// confirmation only unlocks vendor bill generation.
	ConfirmPurchaseOrder(ctx context.Context, actor Actor, orderID int) (*PurchaseOrder, error)

	// GenerateVendorBill copies a confirmed order's lines onto a new DRAFT
	// vendor bill. Each order spawns at most one bill.
	GenerateVendorBill(ctx context.Context, actor Actor, orderID int) (*VendorBill, error)

	// DeletePurchaseOrder removes a DRAFT order. Administrative override only.
	DeletePurchaseOrder(ctx context.Context, actor Actor, orderID int) error

	GetPurchaseOrder(ctx context.Context, actor Actor, orderID int) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, actor Actor, filter OrderFilter) ([]PurchaseOrder, error)
}
