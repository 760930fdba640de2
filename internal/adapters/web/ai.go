package web

import (
	"net/http"
)

// draftExpense runs the free-text assistant and returns both the raw draft
// (with confidence and reasoning) and the resolved expense input the client
// can file via POST /api/expenses after review. Nothing is persisted here.
func (h *Handler) draftExpense(w http.ResponseWriter, r *http.Request) {
	if h.app.Agent == nil {
		writeError(w, r, "expense drafting is not configured", "NOT_CONFIGURED", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, r, "text is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	draft, input, err := h.app.DraftExpense(r.Context(), actorFromContext(r.Context()), req.Text)
	if err != nil {
		h.log.Warn().Err(err).Msg("expense drafting failed")
		writeError(w, r, "could not draft an expense from the text", "DRAFT_FAILED", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"draft": draft,
		"expense": map[string]any{
			"project_id":  input.ProjectID,
			"description": input.Description,
			"amount":      input.Amount,
			"currency":    input.Currency,
		},
	})
}
