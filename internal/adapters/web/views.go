package web

import (
	"time"

	"github.com/shopspring/decimal"

	"projectbooks/internal/core"
)

// Wire representations of the core types. Decimals serialize as strings,
// so amounts survive round trips without float drift.

type projectView struct {
	ID        int             `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	ManagerID int             `json:"manager_id"`
	Cost      decimal.Decimal `json:"cost"`
	Revenue   decimal.Decimal `json:"revenue"`
	Profit    decimal.Decimal `json:"profit"`
	CreatedAt time.Time       `json:"created_at"`
}

func toProjectView(p *core.Project) projectView {
	return projectView{
		ID:        p.ID,
		Code:      p.Code,
		Name:      p.Name,
		ManagerID: p.ManagerID,
		Cost:      p.Cost,
		Revenue:   p.Revenue,
		Profit:    p.Profit(),
		CreatedAt: p.CreatedAt,
	}
}

type taskView struct {
	ID         int       `json:"id"`
	ProjectID  int       `json:"project_id"`
	Name       string    `json:"name"`
	AssigneeID *int      `json:"assignee_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTaskView(t *core.Task) taskView {
	return taskView{ID: t.ID, ProjectID: t.ProjectID, Name: t.Name, AssigneeID: t.AssigneeID, CreatedAt: t.CreatedAt}
}

type lineView struct {
	LineNumber     int             `json:"line_number"`
	TaskID         *int            `json:"task_id,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxPercent     decimal.Decimal `json:"tax_percent"`
	LineTotal      decimal.Decimal `json:"line_total"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineGrandTotal decimal.Decimal `json:"line_grand_total"`
}

func toLineViews(lines []core.DocumentLine) []lineView {
	out := make([]lineView, len(lines))
	for i, l := range lines {
		out[i] = lineView{
			LineNumber:     l.LineNumber,
			TaskID:         l.TaskID,
			Description:    l.Description,
			Quantity:       l.Quantity,
			Unit:           l.Unit,
			UnitPrice:      l.UnitPrice,
			TaxPercent:     l.TaxPercent,
			LineTotal:      l.LineTotal,
			TaxAmount:      l.TaxAmount,
			LineGrandTotal: l.LineGrandTotal,
		}
	}
	return out
}

// lineRequest is one raw line in a create/update payload.
type lineRequest struct {
	TaskID      *int            `json:"task_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
}

func toLineInputs(lines []lineRequest) []core.LineInput {
	out := make([]core.LineInput, len(lines))
	for i, l := range lines {
		out[i] = core.LineInput{
			TaskID:      l.TaskID,
			Description: l.Description,
			Quantity:    l.Quantity,
			Unit:        l.Unit,
			UnitPrice:   l.UnitPrice,
			TaxPercent:  l.TaxPercent,
		}
	}
	return out
}

type expenseView struct {
	ID                    int             `json:"id"`
	Number                string          `json:"number"`
	ProjectID             int             `json:"project_id"`
	TaskID                *int            `json:"task_id,omitempty"`
	Description           string          `json:"description"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	AmountCompanyCurrency decimal.Decimal `json:"amount_company_currency"`
	ReceiptRef            *string         `json:"receipt_ref,omitempty"`
	ReceiptRequired       bool            `json:"receipt_required"`
	Status                core.Status     `json:"status"`
	SubmittedBy           int             `json:"submitted_by"`
	SubmittedAt           *time.Time      `json:"submitted_at,omitempty"`
	ApproverID            *int            `json:"approver_id,omitempty"`
	ApprovedAt            *time.Time      `json:"approved_at,omitempty"`
	RejectionReason       *string         `json:"rejection_reason,omitempty"`
	RejectedAt            *time.Time      `json:"rejected_at,omitempty"`
	ReimbursedAt          *time.Time      `json:"reimbursed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func toExpenseView(e *core.Expense) expenseView {
	return expenseView{
		ID:                    e.ID,
		Number:                e.Number,
		ProjectID:             e.ProjectID,
		TaskID:                e.TaskID,
		Description:           e.Description,
		Amount:                e.Amount,
		Currency:              e.Currency,
		AmountCompanyCurrency: e.AmountCompanyCurrency,
		ReceiptRef:            e.ReceiptRef,
		ReceiptRequired:       e.ReceiptRequired,
		Status:                e.Status,
		SubmittedBy:           e.SubmittedBy,
		SubmittedAt:           e.SubmittedAt,
		ApproverID:            e.ApproverID,
		ApprovedAt:            e.ApprovedAt,
		RejectionReason:       e.RejectionReason,
		RejectedAt:            e.RejectedAt,
		ReimbursedAt:          e.ReimbursedAt,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

// orderView is the shared wire shape of purchase and sales orders.
type orderView struct {
	ID           int             `json:"id"`
	Number       string          `json:"number"`
	ProjectID    int             `json:"project_id"`
	VendorName   string          `json:"vendor_name,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	Status       core.Status     `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TotalTax     decimal.Decimal `json:"total_tax"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	SubmittedBy  int             `json:"submitted_by"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	GeneratedID  *int            `json:"generated_document_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Lines        []lineView      `json:"lines,omitempty"`
}

func toPurchaseOrderView(o *core.PurchaseOrder) orderView {
	return orderView{
		ID:          o.ID,
		Number:      o.Number,
		ProjectID:   o.ProjectID,
		VendorName:  o.VendorName,
		Notes:       o.Notes,
		Status:      o.Status,
		Subtotal:    o.Subtotal,
		TotalTax:    o.TotalTax,
		GrandTotal:  o.GrandTotal,
		SubmittedBy: o.SubmittedBy,
		ConfirmedAt: o.ConfirmedAt,
		GeneratedID: o.GeneratedBillID,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Lines:       toLineViews(o.Lines),
	}
}

func toSalesOrderView(o *core.SalesOrder) orderView {
	return orderView{
		ID:           o.ID,
		Number:       o.Number,
		ProjectID:    o.ProjectID,
		CustomerName: o.CustomerName,
		Notes:        o.Notes,
		Status:       o.Status,
		Subtotal:     o.Subtotal,
		TotalTax:     o.TotalTax,
		GrandTotal:   o.GrandTotal,
		SubmittedBy:  o.SubmittedBy,
		ConfirmedAt:  o.ConfirmedAt,
		GeneratedID:  o.GeneratedInvoiceID,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		Lines:        toLineViews(o.Lines),
	}
}

// billingView is the shared wire shape of invoices and vendor bills.
type billingView struct {
	ID              int             `json:"id"`
	Number          string          `json:"number"`
	ProjectID       int             `json:"project_id"`
	VendorName      string          `json:"vendor_name,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	SalesOrderID    *int            `json:"sales_order_id,omitempty"`
	PurchaseOrderID *int            `json:"purchase_order_id,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Status          core.Status     `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	SubmittedBy     int             `json:"submitted_by"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []lineView      `json:"lines,omitempty"`
}

func toInvoiceView(inv *core.Invoice) billingView {
	return billingView{
		ID:           inv.ID,
		Number:       inv.Number,
		ProjectID:    inv.ProjectID,
		CustomerName: inv.CustomerName,
		SalesOrderID: inv.SalesOrderID,
		Notes:        inv.Notes,
		Status:       inv.Status,
		Subtotal:     inv.Subtotal,
		TotalTax:     inv.TotalTax,
		GrandTotal:   inv.GrandTotal,
		SubmittedBy:  inv.SubmittedBy,
		PostedAt:     inv.PostedAt,
		PaidAt:       inv.PaidAt,
		CreatedAt:    inv.CreatedAt,
		UpdatedAt:    inv.UpdatedAt,
		Lines:        toLineViews(inv.Lines),
	}
}

func toVendorBillView(b *core.VendorBill) billingView {
	return billingView{
		ID:              b.ID,
		Number:          b.Number,
		ProjectID:       b.ProjectID,
		VendorName:      b.VendorName,
		PurchaseOrderID: b.PurchaseOrderID,
		Notes:           b.Notes,
		Status:          b.Status,
		Subtotal:        b.Subtotal,
		TotalTax:        b.TotalTax,
		GrandTotal:      b.GrandTotal,
		SubmittedBy:     b.SubmittedBy,
		PostedAt:        b.PostedAt,
		PaidAt:          b.PaidAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
		Lines:           toLineViews(b.Lines),
	}
}

type historyView struct {
	ID        int64        `json:"id"`
	Action    core.Action  `json:"action"`
	OldStatus *core.Status `json:"old_status,omitempty"`
	NewStatus *core.Status `json:"new_status,omitempty"`
	ActorID   int          `json:"actor_id"`
	Reason    *string      `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func toHistoryViews(records []core.HistoryRecord) []historyView {
	out := make([]historyView, len(records))
	for i, rec := range records {
		out[i] = historyView{
			ID:        rec.ID,
			Action:    rec.Action,
			OldStatus: rec.OldStatus,
			NewStatus: rec.NewStatus,
			ActorID:   rec.ActorID,
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt,
		}
	}
	return out
}
