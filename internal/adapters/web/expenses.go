package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"projectbooks/internal/core"
)

type expenseRequest struct {
	ProjectID   int             `json:"project_id"`
	TaskID      *int            `json:"task_id,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ReceiptRef  *string         `json:"receipt_ref,omitempty"`
}

func (req expenseRequest) input() core.ExpenseInput {
	return core.ExpenseInput{
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ReceiptRef:  req.ReceiptRef,
	}
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exp, err := h.app.Expenses.CreateExpense(r.Context(), actorFromContext(r.Context()), req.input())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseView(exp))
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid expense id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exp, err := h.app.Expenses.UpdateExpense(r.Context(), actorFromContext(r.Context()), id, req.input())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseView(exp))
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid expense id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	exp, err := h.app.Expenses.GetExpense(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseView(exp))
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	filter := core.ExpenseFilter{}
	q := r.URL.Query()
	if v := q.Get("project_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, "invalid project_id filter", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		filter.ProjectID = &id
	}
	if v := q.Get("status"); v != "" {
		status := core.Status(v)
		filter.Status = &status
	}
	if v := q.Get("submitted_by"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, "invalid submitted_by filter", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		filter.SubmittedBy = &id
	}

	expenses, err := h.app.Expenses.ListExpenses(r.Context(), actorFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]expenseView, len(expenses))
	for i := range expenses {
		views[i] = toExpenseView(&expenses[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": views})
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid expense id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.app.Expenses.DeleteExpense(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitExpense(w http.ResponseWriter, r *http.Request) {
	h.expenseTransition(w, r, h.app.Expenses.SubmitExpense)
}

func (h *Handler) approveExpense(w http.ResponseWriter, r *http.Request) {
	h.expenseTransition(w, r, h.app.Expenses.ApproveExpense)
}

func (h *Handler) reimburseExpense(w http.ResponseWriter, r *http.Request) {
	h.expenseTransition(w, r, h.app.Expenses.ReimburseExpense)
}

func (h *Handler) rejectExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid expense id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	exp, err := h.app.Expenses.RejectExpense(r.Context(), actorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseView(exp))
}

func (h *Handler) expenseTransition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor core.Actor, id int) (*core.Expense, error)) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid expense id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	exp, err := fn(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseView(exp))
}
