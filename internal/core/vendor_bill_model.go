package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// VendorBill records a vendor's charge against a project:
// draft → posted → paid. Marking a bill paid adds its grand total to the
// project's cost.
type VendorBill struct {
	ID              int
	Number          string
	ProjectID       int
	VendorName      string
	PurchaseOrderID *int
	Notes           *string
	Status          Status
	Subtotal        decimal.Decimal
	TotalTax        decimal.Decimal
	GrandTotal      decimal.Decimal
	SubmittedBy     int
	PostedAt        *time.Time
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedBy       int
	UpdatedAt       time.Time
	Lines           []DocumentLine
}

// VendorBillInput holds the caller-writable fields of a vendor bill.
type VendorBillInput struct {
	ProjectID  int
	VendorName string
	Notes      *string
	Lines      []LineInput
}

// VendorBillService manages the vendor bill lifecycle.
type VendorBillService interface {
	CreateVendorBill(ctx context.Context, actor Actor, in VendorBillInput) (*VendorBill, error)
	UpdateVendorBill(ctx context.Context, actor Actor, billID int, in VendorBillInput) (*VendorBill, error)

	// PostVendorBill transitions draft → posted.
	PostVendorBill(ctx context.Context, actor Actor, billID int) (*VendorBill, error)

	// MarkVendorBillPaid transitions posted → paid and adds the grand total
	// to the project's cost, exactly once.
	MarkVendorBillPaid(ctx context.Context, actor Actor, billID int) (*VendorBill, error)

	// DeleteVendorBill removes a DRAFT bill. Administrative override only.
	DeleteVendorBill(ctx context.Context, actor Actor, billID int) error

	GetVendorBill(ctx context.Context, actor Actor, billID int) (*VendorBill, error)
	ListVendorBills(ctx context.Context, actor Actor, filter OrderFilter) ([]VendorBill, error)
}
