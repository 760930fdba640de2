package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"projectbooks/internal/ai"
	"projectbooks/internal/core"
)

// App bundles every service the adapters call. Adapters never reach into
// the database directly; all business rules live behind these interfaces.
type App struct {
	Projects       core.ProjectService
	Expenses       core.ExpenseService
	PurchaseOrders core.PurchaseOrderService
	SalesOrders    core.SalesOrderService
	Invoices       core.InvoiceService
	VendorBills    core.VendorBillService
	Settings       core.SettingsService
	Users          core.UserService
	History        core.HistoryService

	// Agent is nil when no OPENAI_API_KEY is configured; the drafting
	// endpoint reports the feature as unavailable in that case.
	Agent ai.AgentService
}

// New wires all services onto one connection pool.
func New(pool *pgxpool.Pool, agent ai.AgentService) *App {
	return &App{
		Projects:       core.NewProjectService(pool),
		Expenses:       core.NewExpenseService(pool),
		PurchaseOrders: core.NewPurchaseOrderService(pool),
		SalesOrders:    core.NewSalesOrderService(pool),
		Invoices:       core.NewInvoiceService(pool),
		VendorBills:    core.NewVendorBillService(pool),
		Settings:       core.NewSettingsService(pool),
		Users:          core.NewUserService(pool),
		History:        core.NewHistoryService(pool),
		Agent:          agent,
	}
}

// DraftExpense runs the free-text assistant over the projects the actor can
// see and converts the structured draft into ready-to-file expense input.
// The caller still reviews and explicitly creates the expense afterwards.
func (a *App) DraftExpense(ctx context.Context, actor core.Actor, text string) (*ai.ExpenseDraft, *core.ExpenseInput, error) {
	if a.Agent == nil {
		return nil, nil, fmt.Errorf("expense drafting is not configured")
	}

	projects, err := a.Projects.ListProjects(ctx)
	if err != nil {
		return nil, nil, err
	}

	draft, err := a.Agent.DraftExpense(ctx, text, projects)
	if err != nil {
		return nil, nil, err
	}

	var projectID int
	for _, p := range projects {
		if p.Code == draft.ProjectCode {
			projectID = p.ID
			break
		}
	}
	if projectID == 0 {
		return nil, nil, fmt.Errorf("drafted project code %q does not exist", draft.ProjectCode)
	}

	amount, err := decimal.NewFromString(draft.Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("drafted amount %q is not a decimal: %w", draft.Amount, err)
	}

	input := &core.ExpenseInput{
		ProjectID:   projectID,
		Description: draft.Description,
		Amount:      amount,
		Currency:    draft.Currency,
	}
	return draft, input, nil
}
