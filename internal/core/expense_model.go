package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a cost claim against a project, optionally tied to a task.
// Amount is in the claimed currency; AmountCompanyCurrency is the fixed
// multiplier conversion that ledger effects use.
type Expense struct {
	ID                    int
	Number                string
	ProjectID             int
	TaskID                *int
	Description           string
	Amount                decimal.Decimal
	Currency              string
	AmountCompanyCurrency decimal.Decimal
	ReceiptRef            *string
	ReceiptRequired       bool
	Status                Status
	SubmittedBy           int
	SubmittedAt           *time.Time
	ApproverID            *int
	ApprovedAt            *time.Time
	RejectionReason       *string
	RejectedAt            *time.Time
	ReimbursedAt          *time.Time
	CreatedAt             time.Time
	UpdatedBy             int
	UpdatedAt             time.Time
}

// ExpenseInput holds the caller-writable fields of an expense. Derived
// fields (number, company-currency amount, receipt flag) are always
// recomputed by the service.
type ExpenseInput struct {
	ProjectID   int
	TaskID      *int
	Description string
	Amount      decimal.Decimal
	Currency    string // empty means company default currency
	ReceiptRef  *string
}

// ExpenseFilter narrows ListExpenses. Nil fields are ignored.
type ExpenseFilter struct {
	ProjectID   *int
	Status      *Status
	SubmittedBy *int
}

// ExpenseService manages the expense lifecycle:
// draft → submitted → {approved, rejected}; approved → reimbursed.
type ExpenseService interface {
	// CreateExpense creates a DRAFT expense with a fresh document number.
	CreateExpense(ctx context.Context, actor Actor, in ExpenseInput) (*Expense, error)

	// UpdateExpense rewrites the caller-writable fields of a DRAFT expense.
	// The document number never changes.
	UpdateExpense(ctx context.Context, actor Actor, expenseID int, in ExpenseInput) (*Expense, error)

	// SubmitExpense transitions draft → submitted. Fails with a
	// ValidationError when a receipt is required but absent.
	SubmitExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error)

	// ApproveExpense transitions submitted → approved and adds the
	// company-currency amount to the project's cost, exactly once.
	ApproveExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error)

	// RejectExpense transitions submitted → rejected. A reason is required.
	RejectExpense(ctx context.Context, actor Actor, expenseID int, reason string) (*Expense, error)

	// ReimburseExpense transitions approved → reimbursed.
	ReimburseExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error)

	// DeleteExpense removes a DRAFT expense. Administrative override only;
	// the deletion is history-logged with a final snapshot.
	DeleteExpense(ctx context.Context, actor Actor, expenseID int) error

	GetExpense(ctx context.Context, actor Actor, expenseID int) (*Expense, error)
	ListExpenses(ctx context.Context, actor Actor, filter ExpenseFilter) ([]Expense, error)
}
