package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"projectbooks/internal/app"
)

// Handler holds the application facade and the chi router.
type Handler struct {
	app *app.App
	log zerolog.Logger
}

// NewHandler creates and wires the chi router with all routes.
// allowedOrigins is a comma-separated list; empty disables CORS entirely.
func NewHandler(a *app.App, allowedOrigins string, log zerolog.Logger) http.Handler {
	h := &Handler{app: a, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	if origins := splitAndTrim(allowedOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Request-ID", "X-Username"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(RequestBodyLimit(1 << 20)) // 1 MB

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireActor)

		r.Get("/api/me", h.me)

		// Projects and tasks
		r.Get("/api/projects", h.listProjects)
		r.Post("/api/projects", h.createProject)
		r.Get("/api/projects/{id}", h.getProject)
		r.Get("/api/projects/{id}/tasks", h.listTasks)
		r.Post("/api/projects/{id}/tasks", h.addTask)

		// Settings
		r.Get("/api/settings", h.getSettings)
		r.Put("/api/settings/{key}", h.setSetting)

		// Expenses
		r.Post("/api/expenses", h.createExpense)
		r.Get("/api/expenses", h.listExpenses)
		r.Get("/api/expenses/{id}", h.getExpense)
		r.Put("/api/expenses/{id}", h.updateExpense)
		r.Delete("/api/expenses/{id}", h.deleteExpense)
		r.Post("/api/expenses/{id}/submit", h.submitExpense)
		r.Post("/api/expenses/{id}/approve", h.approveExpense)
		r.Post("/api/expenses/{id}/reject", h.rejectExpense)
		r.Post("/api/expenses/{id}/reimburse", h.reimburseExpense)

		// Purchase orders
		r.Post("/api/purchase-orders", h.createPurchaseOrder)
		r.Get("/api/purchase-orders", h.listPurchaseOrders)
		r.Get("/api/purchase-orders/{id}", h.getPurchaseOrder)
		r.Put("/api/purchase-orders/{id}", h.updatePurchaseOrder)
		r.Delete("/api/purchase-orders/{id}", h.deletePurchaseOrder)
		r.Post("/api/purchase-orders/{id}/confirm", h.confirmPurchaseOrder)
		r.Post("/api/purchase-orders/{id}/generate-bill", h.generateVendorBill)

		// Sales orders
		r.Post("/api/sales-orders", h.createSalesOrder)
		r.Get("/api/sales-orders", h.listSalesOrders)
		r.Get("/api/sales-orders/{id}", h.getSalesOrder)
		r.Put("/api/sales-orders/{id}", h.updateSalesOrder)
		r.Delete("/api/sales-orders/{id}", h.deleteSalesOrder)
		r.Post("/api/sales-orders/{id}/confirm", h.confirmSalesOrder)
		r.Post("/api/sales-orders/{id}/generate-invoice", h.generateInvoice)

		// Invoices
		r.Post("/api/invoices", h.createInvoice)
		r.Get("/api/invoices", h.listInvoices)
		r.Get("/api/invoices/{id}", h.getInvoice)
		r.Put("/api/invoices/{id}", h.updateInvoice)
		r.Delete("/api/invoices/{id}", h.deleteInvoice)
		r.Post("/api/invoices/{id}/post", h.postInvoice)
		r.Post("/api/invoices/{id}/pay", h.payInvoice)

		// Vendor bills
		r.Post("/api/vendor-bills", h.createVendorBill)
		r.Get("/api/vendor-bills", h.listVendorBills)
		r.Get("/api/vendor-bills/{id}", h.getVendorBill)
		r.Put("/api/vendor-bills/{id}", h.updateVendorBill)
		r.Delete("/api/vendor-bills/{id}", h.deleteVendorBill)
		r.Post("/api/vendor-bills/{id}/post", h.postVendorBill)
		r.Post("/api/vendor-bills/{id}/pay", h.payVendorBill)

		// Audit trail, one route for all document types
		r.Get("/api/history/{docType}/{id}", h.listHistory)

		// AI drafting
		r.Post("/api/ai/draft-expense", h.draftExpense)
	})

	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// me returns the resolved actor, useful for frontends to branch on role.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user_id": actor.ID, "role": actor.Role})
}

// idParam extracts the numeric {id} URL parameter.
func idParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil && id > 0
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
