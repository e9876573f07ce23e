package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ruteo-sync-agent/internal/service"
	"ruteo-sync-agent/pkg/apierror"
	"ruteo-sync-agent/pkg/response"
)

// ShiftHandler exposes the shift lifecycle to the UI layer.
type ShiftHandler struct {
	shifts *service.ShiftManager
}

// NewShiftHandler creates a new shift handler.
func NewShiftHandler(shifts *service.ShiftManager) *ShiftHandler {
	return &ShiftHandler{shifts: shifts}
}

// Current handles GET /api/v1/shift?vendor_id=
func (h *ShiftHandler) Current(w http.ResponseWriter, r *http.Request) {
	vendorID := r.URL.Query().Get("vendor_id")
	if vendorID == "" {
		response.Error(w, apierror.BadRequest("vendor_id is required"))
		return
	}

	snap, err := h.shifts.Verify(r.Context(), vendorID)
	if err != nil {
		response.Error(w, apierror.ServiceUnavailable(err.Error()))
		return
	}

	response.OK(w, snap)
}

type shiftRequest struct {
	VendorID string `json:"vendor_id"`
	Day      string `json:"day"`
	Forced   bool   `json:"forced,omitempty"`
}

func (req *shiftRequest) normalize() error {
	if req.VendorID == "" {
		return errors.New("vendor_id is required")
	}
	if req.Day == "" {
		req.Day = time.Now().UTC().Format(dayFormat)
	}
	return nil
}

// Open handles POST /api/v1/shift/open
func (h *ShiftHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if err := req.normalize(); err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}

	snap, err := h.shifts.Open(r.Context(), req.VendorID, req.Day, req.Forced)
	if err != nil {
		if errors.Is(err, service.ErrShiftAlreadyClosed) {
			// The UI must choose between abandoning and a forced reopen.
			response.Error(w, apierror.Conflict("ALREADY_CLOSED",
				"shift for this day was already closed; reopening requires an explicit forced open"))
			return
		}
		response.Error(w, apierror.ServiceUnavailable(err.Error()))
		return
	}

	response.OK(w, snap)
}

// Close handles POST /api/v1/shift/close
func (h *ShiftHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if err := req.normalize(); err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}

	summary, err := h.shifts.Close(r.Context(), req.VendorID, req.Day)
	if err != nil {
		var pending *service.PendingWorkError
		if errors.As(err, &pending) {
			response.Error(w, apierror.Conflict("PENDING_WORK", err.Error()).
				WithDetails(apierror.FieldError{
					Field:   "pending_count",
					Message: fmt.Sprintf("%d", pending.Count),
				}, apierror.FieldError{
					Field:   "remediation",
					Message: "sync now, then retry the close",
				}))
			return
		}
		if errors.Is(err, service.ErrShiftAlreadyClosed) {
			response.Error(w, apierror.Conflict("ALREADY_CLOSED",
				"the authority reports this shift as already closed"))
			return
		}
		response.Error(w, apierror.ServiceUnavailable(err.Error()))
		return
	}

	response.OK(w, summary)
}
