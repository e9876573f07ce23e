package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/internal/service"
	"ruteo-sync-agent/pkg/apierror"
	"ruteo-sync-agent/pkg/response"

	"github.com/go-chi/chi/v5"
)

const dayFormat = "2006-01-02"

// QueueHandler exposes record capture and the pending badge to the UI layer.
type QueueHandler struct {
	queue     *service.QueueService
	scheduler *service.SyncScheduler
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(queue *service.QueueService, scheduler *service.SyncScheduler) *QueueHandler {
	return &QueueHandler{
		queue:     queue,
		scheduler: scheduler,
	}
}

// CreateSale handles POST /api/v1/sales
func (h *QueueHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var sale model.PendingSale
	if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	queued, err := h.queue.EnqueueSale(r.Context(), &sale)
	if err != nil {
		response.Error(w, apierror.ValidationError(err.Error()))
		return
	}

	response.Created(w, queued)
}

// CreateOrderAction handles POST /api/v1/orders/{order_ref}/actions
func (h *QueueHandler) CreateOrderAction(w http.ResponseWriter, r *http.Request) {
	orderRef := chi.URLParam(r, "order_ref")
	if orderRef == "" {
		response.Error(w, apierror.BadRequest("order_ref is required"))
		return
	}

	var action model.PendingAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	action.OrderRef = orderRef

	queued, err := h.queue.EnqueueOrderAction(r.Context(), &action)
	if err != nil {
		response.Error(w, apierror.ValidationError(err.Error()))
		return
	}

	response.Created(w, queued)
}

// PendingResponse is the queue badge payload.
type PendingResponse struct {
	VendorID string                `json:"vendor_id"`
	Count    int                   `json:"count"`
	Sales    []model.PendingSale   `json:"sales"`
	Actions  []model.PendingAction `json:"actions"`
}

// GetPending handles GET /api/v1/queue/pending?vendor_id=
func (h *QueueHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	vendorID := r.URL.Query().Get("vendor_id")
	if vendorID == "" {
		response.Error(w, apierror.BadRequest("vendor_id is required"))
		return
	}

	sales, actions, err := h.queue.ListPending(r.Context(), vendorID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, PendingResponse{
		VendorID: vendorID,
		Count:    len(sales) + len(actions),
		Sales:    sales,
		Actions:  actions,
	})
}

// GetDayTotals handles GET /api/v1/queue/totals?vendor_id=&day=
func (h *QueueHandler) GetDayTotals(w http.ResponseWriter, r *http.Request) {
	vendorID := r.URL.Query().Get("vendor_id")
	if vendorID == "" {
		response.Error(w, apierror.BadRequest("vendor_id is required"))
		return
	}
	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().UTC().Format(dayFormat)
	}

	totals, err := h.queue.DayTotals(r.Context(), vendorID, day)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"vendor_id": vendorID,
		"day":       day,
		"totals":    totals,
	})
}

// DiscardSale handles DELETE /api/v1/sales/{local_id}. Used only after a
// human decision on a conflicted record.
func (h *QueueHandler) DiscardSale(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "local_id")
	if localID == "" {
		response.Error(w, apierror.BadRequest("local_id is required"))
		return
	}

	if err := h.queue.DiscardSale(r.Context(), localID); err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"discarded": localID})
}

// SyncNow handles POST /api/v1/sync - the UI's pull to refresh.
func (h *QueueHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VendorID string `json:"vendor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VendorID == "" {
		response.Error(w, apierror.BadRequest("vendor_id is required"))
		return
	}

	report, err := h.scheduler.RunNow(r.Context(), req.VendorID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, report)
}
