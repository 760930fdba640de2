package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Ledger effects ripple specific document transitions into project
// aggregates. They run inside the transition's transaction and fire
// exactly once per transition instance:
//
//	expense submitted → approved   project.cost    += amount (company currency)
//	vendor bill posted → paid      project.cost    += grand total
//	invoice posted → paid          project.revenue += grand total
//
// Order confirmation carries no ledger effect; it only unlocks downstream
// document generation. No compensating reversal is defined.

func addProjectCostTx(ctx context.Context, tx pgx.Tx, projectID int, amount decimal.Decimal) error {
	return adjustProjectTx(ctx, tx, "cost", projectID, amount)
}

func addProjectRevenueTx(ctx context.Context, tx pgx.Tx, projectID int, amount decimal.Decimal) error {
	return adjustProjectTx(ctx, tx, "revenue", projectID, amount)
}

func adjustProjectTx(ctx context.Context, tx pgx.Tx, column string, projectID int, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return validationf("ledger effect amount must be >= 0, got %s", amount)
	}
	query := fmt.Sprintf("UPDATE projects SET %s = %s + $1 WHERE id = $2", column, column)
	tag, err := tx.Exec(ctx, query, amount, projectID)
	if err != nil {
		return fmt.Errorf("failed to apply project %s effect: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("project", projectID)
	}
	return nil
}
