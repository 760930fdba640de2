package core_test

import (
	"context"
	"testing"

	"projectbooks/internal/core"
)

func TestSettings_AdminOnlyWrites(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewSettingsService(pool)
	ctx := context.Background()

	if err := svc.Set(ctx, fiona, core.SettingReceiptRequiredThreshold, "250"); !core.IsAccessDenied(err) {
		t.Errorf("expected access denied for non-admin, got %v", err)
	}
	if err := svc.Set(ctx, rootie, core.SettingReceiptRequiredThreshold, "not-a-number"); !core.IsValidation(err) {
		t.Errorf("expected validation error for junk threshold, got %v", err)
	}
	if err := svc.Set(ctx, rootie, "favorite_color", "teal"); !core.IsValidation(err) {
		t.Errorf("expected validation error for unknown key, got %v", err)
	}

	if err := svc.Set(ctx, rootie, core.SettingReceiptRequiredThreshold, "250"); err != nil {
		t.Fatalf("admin failed to set threshold: %v", err)
	}
	settings, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("failed to read settings: %v", err)
	}
	if !settings.ReceiptRequiredThreshold.Equal(d("250")) {
		t.Errorf("expected threshold 250, got %s", settings.ReceiptRequiredThreshold)
	}
}

func TestExpense_ForeignCurrencyConversion(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	settings := core.NewSettingsService(pool)
	expenses := core.NewExpenseService(pool)
	ctx := context.Background()

	if err := settings.Set(ctx, rootie, core.SettingExchangeRateMultiplier, "2"); err != nil {
		t.Fatalf("failed to set multiplier: %v", err)
	}

	// 60 EUR converts to 120 company currency, crossing the 100 threshold.
	exp, err := expenses.CreateExpense(ctx, alice, core.ExpenseInput{
		ProjectID:   1,
		Description: "Berlin taxi",
		Amount:      d("60"),
		Currency:    "EUR",
	})
	if err != nil {
		t.Fatalf("failed to create foreign currency expense: %v", err)
	}
	if exp.Currency != "EUR" {
		t.Errorf("expected currency EUR, got %s", exp.Currency)
	}
	if !exp.AmountCompanyCurrency.Equal(d("120")) {
		t.Errorf("expected company amount 120, got %s", exp.AmountCompanyCurrency)
	}
	if !exp.ReceiptRequired {
		t.Errorf("expected receipt required: converted amount crosses the threshold")
	}

	// The company-currency amount is what lands on the project ledger.
	ref := "receipts/taxi.jpg"
	if _, err := expenses.UpdateExpense(ctx, alice, exp.ID, core.ExpenseInput{
		ProjectID:   1,
		Description: "Berlin taxi",
		Amount:      d("60"),
		Currency:    "EUR",
		ReceiptRef:  &ref,
	}); err != nil {
		t.Fatalf("failed to attach receipt: %v", err)
	}
	if _, err := expenses.SubmitExpense(ctx, alice, exp.ID); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	if _, err := expenses.ApproveExpense(ctx, fiona, exp.ID); err != nil {
		t.Fatalf("failed to approve: %v", err)
	}

	project, err := core.NewProjectService(pool).GetProject(ctx, 1)
	if err != nil {
		t.Fatalf("failed to fetch project: %v", err)
	}
	if !project.Cost.Equal(d("120")) {
		t.Errorf("expected project cost 120 in company currency, got %s", project.Cost)
	}
}
