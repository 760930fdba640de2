package web

import (
	"context"
	"net/http"

	"projectbooks/internal/core"
)

type invoiceRequest struct {
	ProjectID    int           `json:"project_id"`
	CustomerName string        `json:"customer_name"`
	Notes        *string       `json:"notes,omitempty"`
	Lines        []lineRequest `json:"lines"`
}

type vendorBillRequest struct {
	ProjectID  int           `json:"project_id"`
	VendorName string        `json:"vendor_name"`
	Notes      *string       `json:"notes,omitempty"`
	Lines      []lineRequest `json:"lines"`
}

// ── Invoices ──

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.app.Invoices.CreateInvoice(r.Context(), actorFromContext(r.Context()), core.InvoiceInput{
		ProjectID:    req.ProjectID,
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceView(inv))
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid invoice id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req invoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.app.Invoices.UpdateInvoice(r.Context(), actorFromContext(r.Context()), id, core.InvoiceInput{
		ProjectID:    req.ProjectID,
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceView(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, h.app.Invoices.GetInvoice)
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, h.app.Invoices.PostInvoice)
}

func (h *Handler) payInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, h.app.Invoices.MarkInvoicePaid)
}

func (h *Handler) invoiceAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor core.Actor, id int) (*core.Invoice, error)) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid invoice id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	inv, err := fn(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceView(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}
	invoices, err := h.app.Invoices.ListInvoices(r.Context(), actorFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]billingView, len(invoices))
	for i := range invoices {
		views[i] = toInvoiceView(&invoices[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": views})
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid invoice id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.app.Invoices.DeleteInvoice(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Vendor bills ──

func (h *Handler) createVendorBill(w http.ResponseWriter, r *http.Request) {
	var req vendorBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bill, err := h.app.VendorBills.CreateVendorBill(r.Context(), actorFromContext(r.Context()), core.VendorBillInput{
		ProjectID:  req.ProjectID,
		VendorName: req.VendorName,
		Notes:      req.Notes,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVendorBillView(bill))
}

func (h *Handler) updateVendorBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid vendor bill id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req vendorBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bill, err := h.app.VendorBills.UpdateVendorBill(r.Context(), actorFromContext(r.Context()), id, core.VendorBillInput{
		ProjectID:  req.ProjectID,
		VendorName: req.VendorName,
		Notes:      req.Notes,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorBillView(bill))
}

func (h *Handler) getVendorBill(w http.ResponseWriter, r *http.Request) {
	h.vendorBillAction(w, r, h.app.VendorBills.GetVendorBill)
}

func (h *Handler) postVendorBill(w http.ResponseWriter, r *http.Request) {
	h.vendorBillAction(w, r, h.app.VendorBills.PostVendorBill)
}

func (h *Handler) payVendorBill(w http.ResponseWriter, r *http.Request) {
	h.vendorBillAction(w, r, h.app.VendorBills.MarkVendorBillPaid)
}

func (h *Handler) vendorBillAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor core.Actor, id int) (*core.VendorBill, error)) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid vendor bill id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	bill, err := fn(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorBillView(bill))
}

func (h *Handler) listVendorBills(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}
	bills, err := h.app.VendorBills.ListVendorBills(r.Context(), actorFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]billingView, len(bills))
	for i := range bills {
		views[i] = toVendorBillView(&bills[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendor_bills": views})
}

func (h *Handler) deleteVendorBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid vendor bill id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.app.VendorBills.DeleteVendorBill(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
