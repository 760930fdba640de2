package web

import (
	"context"
	"net/http"
	"strconv"

	"projectbooks/internal/core"
)

type purchaseOrderRequest struct {
	ProjectID  int           `json:"project_id"`
	VendorName string        `json:"vendor_name"`
	Notes      *string       `json:"notes,omitempty"`
	Lines      []lineRequest `json:"lines"`
}

type salesOrderRequest struct {
	ProjectID    int           `json:"project_id"`
	CustomerName string        `json:"customer_name"`
	Notes        *string       `json:"notes,omitempty"`
	Lines        []lineRequest `json:"lines"`
}

// orderFilter parses the shared project_id/status query parameters. The
// bool result is false when a parameter is malformed (the error response
// has already been written).
func orderFilter(w http.ResponseWriter, r *http.Request) (core.OrderFilter, bool) {
	filter := core.OrderFilter{}
	q := r.URL.Query()
	if v := q.Get("project_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, "invalid project_id filter", "BAD_REQUEST", http.StatusBadRequest)
			return filter, false
		}
		filter.ProjectID = &id
	}
	if v := q.Get("status"); v != "" {
		status := core.Status(v)
		filter.Status = &status
	}
	return filter, true
}

// ── Purchase orders ──

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.app.PurchaseOrders.CreatePurchaseOrder(r.Context(), actorFromContext(r.Context()), core.PurchaseOrderInput{
		ProjectID:  req.ProjectID,
		VendorName: req.VendorName,
		Notes:      req.Notes,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseOrderView(order))
}

func (h *Handler) updatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req purchaseOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.app.PurchaseOrders.UpdatePurchaseOrder(r.Context(), actorFromContext(r.Context()), id, core.PurchaseOrderInput{
		ProjectID:  req.ProjectID,
		VendorName: req.VendorName,
		Notes:      req.Notes,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseOrderView(order))
}

func (h *Handler) confirmPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	h.purchaseOrderAction(w, r, h.app.PurchaseOrders.ConfirmPurchaseOrder)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	h.purchaseOrderAction(w, r, h.app.PurchaseOrders.GetPurchaseOrder)
}

func (h *Handler) purchaseOrderAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor core.Actor, id int) (*core.PurchaseOrder, error)) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	order, err := fn(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseOrderView(order))
}

func (h *Handler) generateVendorBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	bill, err := h.app.PurchaseOrders.GenerateVendorBill(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVendorBillView(bill))
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}
	orders, err := h.app.PurchaseOrders.ListPurchaseOrders(r.Context(), actorFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toPurchaseOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": views})
}

func (h *Handler) deletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.app.PurchaseOrders.DeletePurchaseOrder(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Sales orders ──

func (h *Handler) createSalesOrder(w http.ResponseWriter, r *http.Request) {
	var req salesOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.app.SalesOrders.CreateSalesOrder(r.Context(), actorFromContext(r.Context()), core.SalesOrderInput{
		ProjectID:    req.ProjectID,
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSalesOrderView(order))
}

func (h *Handler) updateSalesOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid sales order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req salesOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.app.SalesOrders.UpdateSalesOrder(r.Context(), actorFromContext(r.Context()), id, core.SalesOrderInput{
		ProjectID:    req.ProjectID,
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesOrderView(order))
}

func (h *Handler) confirmSalesOrder(w http.ResponseWriter, r *http.Request) {
	h.salesOrderAction(w, r, h.app.SalesOrders.ConfirmSalesOrder)
}

func (h *Handler) getSalesOrder(w http.ResponseWriter, r *http.Request) {
	h.salesOrderAction(w, r, h.app.SalesOrders.GetSalesOrder)
}

func (h *Handler) salesOrderAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor core.Actor, id int) (*core.SalesOrder, error)) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid sales order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	order, err := fn(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesOrderView(order))
}

func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid sales order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	inv, err := h.app.SalesOrders.GenerateInvoice(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceView(inv))
}

func (h *Handler) listSalesOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}
	orders, err := h.app.SalesOrders.ListSalesOrders(r.Context(), actorFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toSalesOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales_orders": views})
}

func (h *Handler) deleteSalesOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid sales order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.app.SalesOrders.DeleteSalesOrder(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
