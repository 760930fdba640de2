package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"projectbooks/internal/core"
)

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.app.Projects.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]projectView, len(projects))
	for i := range projects {
		views[i] = toProjectView(&projects[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": views})
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code      string `json:"code"`
		Name      string `json:"name"`
		ManagerID int    `json:"manager_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.app.Projects.CreateProject(r.Context(), actorFromContext(r.Context()), req.Code, req.Name, req.ManagerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectView(p))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid project id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	p, err := h.app.Projects.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(p))
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid project id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	tasks, err := h.app.Projects.ListTasks(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]taskView, len(tasks))
	for i := range tasks {
		views[i] = toTaskView(&tasks[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

func (h *Handler) addTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid project id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req struct {
		Name       string `json:"name"`
		AssigneeID *int   `json:"assignee_id,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.app.Projects.AddTask(r.Context(), actorFromContext(r.Context()), id, req.Name, req.AssigneeID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskView(task))
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.app.Settings.Get(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt_required_threshold": settings.ReceiptRequiredThreshold,
		"default_currency":           settings.DefaultCurrency,
		"exchange_rate_multiplier":   settings.ExchangeRateMultiplier,
	})
}

func (h *Handler) setSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.app.Settings.Set(r.Context(), actorFromContext(r.Context()), key, req.Value); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// docTypeFromParam maps the URL segment onto a document type. Unknown
// segments are a 400, not a lookup miss.
var docTypeFromParam = map[string]core.DocType{
	"expenses":        core.DocTypeExpense,
	"purchase-orders": core.DocTypePurchaseOrder,
	"sales-orders":    core.DocTypeSalesOrder,
	"invoices":        core.DocTypeInvoice,
	"vendor-bills":    core.DocTypeVendorBill,
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	dt, ok := docTypeFromParam[chi.URLParam(r, "docType")]
	if !ok {
		writeError(w, r, "unknown document type", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid document id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	records, err := h.app.History.ListHistory(r.Context(), dt, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": toHistoryViews(records)})
}
