package core_test

import (
	"testing"
	"time"

	"projectbooks/internal/core"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		dt      core.DocType
		from    core.Status
		to      core.Status
		allowed bool
	}{
		{"expense submit", core.DocTypeExpense, core.StatusDraft, core.StatusSubmitted, true},
		{"expense approve", core.DocTypeExpense, core.StatusSubmitted, core.StatusApproved, true},
		{"expense reject", core.DocTypeExpense, core.StatusSubmitted, core.StatusRejected, true},
		{"expense reimburse", core.DocTypeExpense, core.StatusApproved, core.StatusReimbursed, true},
		{"expense cannot skip submission", core.DocTypeExpense, core.StatusDraft, core.StatusApproved, false},
		{"expense cannot reopen rejection", core.DocTypeExpense, core.StatusRejected, core.StatusDraft, false},
		{"expense cannot double approve", core.DocTypeExpense, core.StatusApproved, core.StatusApproved, false},
		{"reimbursed is terminal", core.DocTypeExpense, core.StatusReimbursed, core.StatusApproved, false},

		{"purchase order confirm", core.DocTypePurchaseOrder, core.StatusDraft, core.StatusConfirmed, true},
		{"confirmed order is terminal", core.DocTypePurchaseOrder, core.StatusConfirmed, core.StatusDraft, false},
		{"sales order confirm", core.DocTypeSalesOrder, core.StatusDraft, core.StatusConfirmed, true},
		{"order never posts", core.DocTypeSalesOrder, core.StatusConfirmed, core.StatusPosted, false},

		{"invoice post", core.DocTypeInvoice, core.StatusDraft, core.StatusPosted, true},
		{"invoice pay", core.DocTypeInvoice, core.StatusPosted, core.StatusPaid, true},
		{"invoice cannot pay a draft", core.DocTypeInvoice, core.StatusDraft, core.StatusPaid, false},
		{"paid invoice is terminal", core.DocTypeInvoice, core.StatusPaid, core.StatusPosted, false},
		{"vendor bill post", core.DocTypeVendorBill, core.StatusDraft, core.StatusPosted, true},
		{"vendor bill pay", core.DocTypeVendorBill, core.StatusPosted, core.StatusPaid, true},
		{"vendor bill never confirmed", core.DocTypeVendorBill, core.StatusDraft, core.StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.CanTransition(tt.dt, tt.from, tt.to)
			if tt.allowed && err != nil {
				t.Errorf("expected %s → %s to be allowed for %s, got %v", tt.from, tt.to, tt.dt, err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatalf("expected %s → %s to be rejected for %s", tt.from, tt.to, tt.dt)
				}
				if !core.IsInvalidTransition(err) {
					t.Errorf("expected an invalid transition error, got %v", err)
				}
			}
		})
	}
}

func TestFormatPeriod(t *testing.T) {
	at := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)
	if got := core.FormatPeriod(at); got != "202503" {
		t.Errorf("expected period 202503, got %s", got)
	}
}
