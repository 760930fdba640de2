package core_test

import (
	"context"
	"testing"

	"projectbooks/internal/core"
)

func TestPurchaseOrder_TotalsAndLines(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewPurchaseOrderService(pool)
	ctx := context.Background()

	order, err := svc.CreatePurchaseOrder(ctx, mark, core.PurchaseOrderInput{
		ProjectID:  1,
		VendorName: "Initech Supplies",
		Lines: []core.LineInput{
			{Description: "Workstations", Quantity: d("2"), Unit: "unit", UnitPrice: d("10"), TaxPercent: d("10")},
			{Description: "Cabling", Quantity: d("1"), Unit: "box", UnitPrice: d("5")},
		},
	})
	if err != nil {
		t.Fatalf("failed to create purchase order: %v", err)
	}

	if !order.Subtotal.Equal(d("25")) {
		t.Errorf("expected subtotal 25, got %s", order.Subtotal)
	}
	if !order.TotalTax.Equal(d("2")) {
		t.Errorf("expected total tax 2, got %s", order.TotalTax)
	}
	if !order.GrandTotal.Equal(d("27")) {
		t.Errorf("expected grand total 27, got %s", order.GrandTotal)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(order.Lines))
	}
	if !order.Lines[0].LineGrandTotal.Equal(d("22")) {
		t.Errorf("expected first line grand total 22, got %s", order.Lines[0].LineGrandTotal)
	}
	if order.Status != core.StatusDraft {
		t.Errorf("expected draft status, got %s", order.Status)
	}

	// Replacing the lines recomputes every derived amount.
	order, err = svc.UpdatePurchaseOrder(ctx, mark, order.ID, core.PurchaseOrderInput{
		ProjectID:  1,
		VendorName: "Initech Supplies",
		Lines: []core.LineInput{
			{Description: "Workstations", Quantity: d("3"), Unit: "unit", UnitPrice: d("10"), TaxPercent: d("10")},
		},
	})
	if err != nil {
		t.Fatalf("failed to update purchase order: %v", err)
	}
	if len(order.Lines) != 1 || !order.GrandTotal.Equal(d("33")) {
		t.Errorf("expected 1 line and grand total 33 after update, got %d lines and %s", len(order.Lines), order.GrandTotal)
	}
}

func TestPurchaseOrder_ConfirmLocksEditing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewPurchaseOrderService(pool)
	ctx := context.Background()

	order, err := svc.CreatePurchaseOrder(ctx, mark, core.PurchaseOrderInput{
		ProjectID:  1,
		VendorName: "Initech Supplies",
		Lines:      []core.LineInput{{Description: "Desks", Quantity: d("4"), Unit: "unit", UnitPrice: d("50")}},
	})
	if err != nil {
		t.Fatalf("failed to create purchase order: %v", err)
	}

	order, err = svc.ConfirmPurchaseOrder(ctx, mark, order.ID)
	if err != nil {
		t.Fatalf("failed to confirm purchase order: %v", err)
	}
	if order.Status != core.StatusConfirmed || order.ConfirmedAt == nil {
		t.Errorf("expected confirmed status with timestamp, got %s", order.Status)
	}

	if _, err := svc.ConfirmPurchaseOrder(ctx, mark, order.ID); !core.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition on double confirmation, got %v", err)
	}
	if _, err := svc.UpdatePurchaseOrder(ctx, mark, order.ID, core.PurchaseOrderInput{
		ProjectID:  1,
		VendorName: "Initech Supplies",
		Lines:      []core.LineInput{{Description: "Desks", Quantity: d("1"), Unit: "unit", UnitPrice: d("50")}},
	}); !core.IsValidation(err) {
		t.Errorf("expected validation error editing a confirmed order, got %v", err)
	}
}

func TestPurchaseOrder_GenerateVendorBill(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	orders := core.NewPurchaseOrderService(pool)
	bills := core.NewVendorBillService(pool)
	ctx := context.Background()

	order, err := orders.CreatePurchaseOrder(ctx, mark, core.PurchaseOrderInput{
		ProjectID:  1,
		VendorName: "Initech Supplies",
		Lines: []core.LineInput{
			{Description: "Workstations", Quantity: d("2"), Unit: "unit", UnitPrice: d("10"), TaxPercent: d("10")},
			{Description: "Cabling", Quantity: d("1"), Unit: "box", UnitPrice: d("5")},
		},
	})
	if err != nil {
		t.Fatalf("failed to create purchase order: %v", err)
	}

	// Generation requires a confirmed order.
	if _, err := orders.GenerateVendorBill(ctx, fiona, order.ID); !core.IsValidation(err) {
		t.Fatalf("expected validation error generating from a draft order, got %v", err)
	}
	if _, err := orders.ConfirmPurchaseOrder(ctx, mark, order.ID); err != nil {
		t.Fatalf("failed to confirm order: %v", err)
	}

	bill, err := orders.GenerateVendorBill(ctx, fiona, order.ID)
	if err != nil {
		t.Fatalf("failed to generate vendor bill: %v", err)
	}
	if bill.Status != core.StatusDraft {
		t.Errorf("expected generated bill to be a draft, got %s", bill.Status)
	}
	if bill.VendorName != order.VendorName {
		t.Errorf("expected vendor name %q carried over, got %q", order.VendorName, bill.VendorName)
	}
	if bill.PurchaseOrderID == nil || *bill.PurchaseOrderID != order.ID {
		t.Errorf("expected bill to reference the source order")
	}
	if !bill.GrandTotal.Equal(d("27")) || !bill.Subtotal.Equal(d("25")) || !bill.TotalTax.Equal(d("2")) {
		t.Errorf("expected totals to match the order exactly, got %s / %s / %s",
			bill.Subtotal, bill.TotalTax, bill.GrandTotal)
	}
	if len(bill.Lines) != 2 {
		t.Errorf("expected 2 copied lines, got %d", len(bill.Lines))
	}

	got, err := orders.GetPurchaseOrder(ctx, fiona, order.ID)
	if err != nil {
		t.Fatalf("failed to refetch order: %v", err)
	}
	if got.GeneratedBillID == nil || *got.GeneratedBillID != bill.ID {
		t.Errorf("expected the order to record its generated bill")
	}

	// One bill per order.
	if _, err := orders.GenerateVendorBill(ctx, fiona, order.ID); !core.IsValidation(err) {
		t.Errorf("expected validation error on second generation, got %v", err)
	}

	// The generated bill behaves like any hand-made bill from here on.
	if _, err := bills.PostVendorBill(ctx, fiona, bill.ID); err != nil {
		t.Errorf("failed to post generated bill: %v", err)
	}
}
