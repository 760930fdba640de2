package core_test

import (
	"context"
	"testing"

	"projectbooks/internal/core"
)

func TestSalesOrder_GenerateInvoiceRevenueFlow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	orders := core.NewSalesOrderService(pool)
	invoices := core.NewInvoiceService(pool)
	projects := core.NewProjectService(pool)
	ctx := context.Background()

	order, err := orders.CreateSalesOrder(ctx, mark, core.SalesOrderInput{
		ProjectID:    1,
		CustomerName: "Globex Corporation",
		Lines: []core.LineInput{
			{Description: "Design sprint", Quantity: d("10"), Unit: "day", UnitPrice: d("800"), TaxPercent: d("20")},
			{Description: "Hosting setup", Quantity: d("1"), Unit: "unit", UnitPrice: d("250")},
		},
	})
	if err != nil {
		t.Fatalf("failed to create sales order: %v", err)
	}
	if !order.GrandTotal.Equal(d("9850")) {
		t.Fatalf("expected grand total 9850, got %s", order.GrandTotal)
	}

	if _, err := orders.ConfirmSalesOrder(ctx, mark, order.ID); err != nil {
		t.Fatalf("failed to confirm sales order: %v", err)
	}

	inv, err := orders.GenerateInvoice(ctx, fiona, order.ID)
	if err != nil {
		t.Fatalf("failed to generate invoice: %v", err)
	}
	if inv.Status != core.StatusDraft {
		t.Errorf("expected generated invoice to be a draft, got %s", inv.Status)
	}
	if inv.CustomerName != order.CustomerName {
		t.Errorf("expected customer name carried over, got %q", inv.CustomerName)
	}
	if inv.SalesOrderID == nil || *inv.SalesOrderID != order.ID {
		t.Errorf("expected invoice to reference the source order")
	}
	if !inv.Subtotal.Equal(order.Subtotal) || !inv.TotalTax.Equal(order.TotalTax) || !inv.GrandTotal.Equal(order.GrandTotal) {
		t.Errorf("expected invoice totals to match the order exactly, got %s / %s / %s",
			inv.Subtotal, inv.TotalTax, inv.GrandTotal)
	}

	got, err := orders.GetSalesOrder(ctx, fiona, order.ID)
	if err != nil {
		t.Fatalf("failed to refetch order: %v", err)
	}
	if got.GeneratedInvoiceID == nil || *got.GeneratedInvoiceID != inv.ID {
		t.Errorf("expected the order to record its generated invoice")
	}
	if _, err := orders.GenerateInvoice(ctx, fiona, order.ID); !core.IsValidation(err) {
		t.Errorf("expected validation error on second generation, got %v", err)
	}

	// Revenue lands when the invoice is paid, not before.
	project, err := projects.GetProject(ctx, 1)
	if err != nil {
		t.Fatalf("failed to fetch project: %v", err)
	}
	if !project.Revenue.IsZero() {
		t.Fatalf("expected zero revenue before payment, got %s", project.Revenue)
	}

	inv, err = invoices.PostInvoice(ctx, fiona, inv.ID)
	if err != nil {
		t.Fatalf("failed to post invoice: %v", err)
	}
	if inv.Status != core.StatusPosted || inv.PostedAt == nil {
		t.Errorf("expected posted status with timestamp, got %s", inv.Status)
	}

	project, _ = projects.GetProject(ctx, 1)
	if !project.Revenue.IsZero() {
		t.Errorf("expected zero revenue after posting, got %s", project.Revenue)
	}

	inv, err = invoices.MarkInvoicePaid(ctx, fiona, inv.ID)
	if err != nil {
		t.Fatalf("failed to mark invoice paid: %v", err)
	}
	if inv.PaidAt == nil {
		t.Errorf("expected PaidAt to be set")
	}
	project, err = projects.GetProject(ctx, 1)
	if err != nil {
		t.Fatalf("failed to refetch project: %v", err)
	}
	if !project.Revenue.Equal(d("9850")) {
		t.Errorf("expected revenue 9850 after payment, got %s", project.Revenue)
	}
	if !project.Profit().Equal(d("9850")) {
		t.Errorf("expected profit 9850 with zero cost, got %s", project.Profit())
	}

	// Paying twice must not double the revenue.
	if _, err := invoices.MarkInvoicePaid(ctx, fiona, inv.ID); !core.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition paying twice, got %v", err)
	}
	project, _ = projects.GetProject(ctx, 1)
	if !project.Revenue.Equal(d("9850")) {
		t.Errorf("expected revenue to stay 9850, got %s", project.Revenue)
	}
}

func TestInvoice_PaymentRequiresFinance(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	invoices := core.NewInvoiceService(pool)
	ctx := context.Background()

	inv, err := invoices.CreateInvoice(ctx, mark, core.InvoiceInput{
		ProjectID:    1,
		CustomerName: "Globex Corporation",
		Lines:        []core.LineInput{{Description: "Retainer", Quantity: d("1"), Unit: "month", UnitPrice: d("2000")}},
	})
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}
	if _, err := invoices.PostInvoice(ctx, mark, inv.ID); err != nil {
		t.Fatalf("failed to post invoice: %v", err)
	}

	// Posting is open to the owner, payment is not.
	if _, err := invoices.MarkInvoicePaid(ctx, mark, inv.ID); !core.IsAccessDenied(err) {
		t.Errorf("expected access denied for non-finance payment, got %v", err)
	}
	if _, err := invoices.MarkInvoicePaid(ctx, fiona, inv.ID); err != nil {
		t.Errorf("finance manager failed to mark paid: %v", err)
	}
}

func TestVendorBill_PaymentCostEffect(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	bills := core.NewVendorBillService(pool)
	projects := core.NewProjectService(pool)
	ctx := context.Background()

	bill, err := bills.CreateVendorBill(ctx, fiona, core.VendorBillInput{
		ProjectID:  2,
		VendorName: "Stationery World",
		Lines: []core.LineInput{
			{Description: "Paper", Quantity: d("10"), Unit: "ream", UnitPrice: d("4.50"), TaxPercent: d("10")},
		},
	})
	if err != nil {
		t.Fatalf("failed to create vendor bill: %v", err)
	}
	if !bill.GrandTotal.Equal(d("49.50")) {
		t.Fatalf("expected grand total 49.50, got %s", bill.GrandTotal)
	}

	if _, err := bills.MarkVendorBillPaid(ctx, fiona, bill.ID); !core.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition paying a draft bill, got %v", err)
	}

	if _, err := bills.PostVendorBill(ctx, fiona, bill.ID); err != nil {
		t.Fatalf("failed to post vendor bill: %v", err)
	}
	if _, err := bills.MarkVendorBillPaid(ctx, fiona, bill.ID); err != nil {
		t.Fatalf("failed to mark vendor bill paid: %v", err)
	}

	project, err := projects.GetProject(ctx, 2)
	if err != nil {
		t.Fatalf("failed to fetch project: %v", err)
	}
	if !project.Cost.Equal(d("49.50")) {
		t.Errorf("expected project cost 49.50 after payment, got %s", project.Cost)
	}
	if !project.Profit().Equal(d("-49.50")) {
		t.Errorf("expected profit -49.50, got %s", project.Profit())
	}
}

func TestDocumentNumbers_PerTypePrefixes(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	orders := core.NewSalesOrderService(pool)
	bills := core.NewVendorBillService(pool)
	invoices := core.NewInvoiceService(pool)

	line := []core.LineInput{{Description: "Thing", Quantity: d("1"), Unit: "unit", UnitPrice: d("10")}}

	so, err := orders.CreateSalesOrder(ctx, mark, core.SalesOrderInput{ProjectID: 1, CustomerName: "Globex", Lines: line})
	if err != nil {
		t.Fatalf("failed to create sales order: %v", err)
	}
	bill, err := bills.CreateVendorBill(ctx, fiona, core.VendorBillInput{ProjectID: 1, VendorName: "Initech", Lines: line})
	if err != nil {
		t.Fatalf("failed to create vendor bill: %v", err)
	}
	inv, err := invoices.CreateInvoice(ctx, fiona, core.InvoiceInput{ProjectID: 1, CustomerName: "Globex", Lines: line})
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}

	for _, tc := range []struct {
		number string
		prefix string
	}{
		{so.Number, "SO-"},
		{bill.Number, "BILL-"},
		{inv.Number, "INV-"},
	} {
		if len(tc.number) < len(tc.prefix) || tc.number[:len(tc.prefix)] != tc.prefix {
			t.Errorf("expected number with prefix %s, got %s", tc.prefix, tc.number)
		}
	}
}
