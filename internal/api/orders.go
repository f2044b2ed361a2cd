package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/storage"
	"github.com/quickdeliver/qdsupport/internal/worker"
)

type orderItemRequest struct {
	Name     string  `json:"name" validate:"required"`
	Quantity int     `json:"quantity" validate:"gte=1"`
	Price    float64 `json:"price" validate:"gte=0"`
}

type createOrderRequest struct {
	Restaurant string             `json:"restaurant" validate:"required,max=200"`
	Items      []orderItemRequest `json:"items" validate:"dive"`
	Total      float64            `json:"total" validate:"gte=0"`
	Status     string             `json:"status"`
	Date       string             `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.ListOrders(chi.URLParam(r, "username"))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing orders: %v", err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.deps.Store.GetOrder(chi.URLParam(r, "username"), chi.URLParam(r, "number"))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found_error", "order %s not found", chi.URLParam(r, "number"))
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "loading order: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// createOrder stores the order and queues a model rebuild so the new
// interaction reaches the recommender.
func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	if h.deps.OrdersReadOnly {
		httpError(w, http.StatusConflict, "conflict_error", "orders are read-only while history is served from the orders database")
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := orders.Status(req.Status)
	if status != "" && !status.Valid() {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown order status %q", req.Status)
		return
	}

	o := orders.Order{
		Restaurant: req.Restaurant,
		Total:      req.Total,
		Status:     status,
		Date:       req.Date,
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, orders.Item{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}

	saved, err := h.deps.Store.SaveOrder(user, o)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "saving order: %v", err)
		return
	}
	if h.deps.Profiles != nil {
		h.deps.Profiles.Invalidate(user)
	}

	queued, err := worker.RequestRebuild(h.deps.Store, worker.RebuildPayload{Reason: "order_created", Username: user})
	if err != nil {
		// The order is stored; the next rebuild picks it up.
		slog.Warn("queueing model rebuild failed", "username", user, "error", err)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"order":          saved,
		"rebuild_queued": queued,
	})
}

func (h *handlers) listBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.deps.Store.ListBills(chi.URLParam(r, "username"))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing bills: %v", err)
		return
	}
	if bills == nil {
		bills = []storage.Bill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}
