package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"ride-dispatcher/internal/dispatch"
	"ride-dispatcher/internal/models"
	"ride-dispatcher/internal/records"
)

const maxDispatchBody = 8 << 20

// DispatchRequest is the body of POST /api/v1/dispatch
type DispatchRequest struct {
	Rides   []records.RawRide   `json:"rides" validate:"required"`
	Drivers []records.RawDriver `json:"drivers" validate:"required,min=1"`
	Save    bool                `json:"save"`
}

// DispatchResponse is the payload returned for a run
type DispatchResponse struct {
	RunID      string                `json:"runId"`
	Manifest   models.Manifest       `json:"manifest"`
	Cost       models.CostBreakdown  `json:"cost"`
	Unassigned []models.ID           `json:"unassigned"`
	Warnings   []string              `json:"warnings"`
	Rounds     []dispatch.RoundTrace `json:"rounds"`
	Partial    bool                  `json:"partial"`
	Saved      bool                  `json:"saved"`
}

// HandleDispatch handles POST /api/v1/dispatch
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req DispatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDispatchBody))
	if err := dec.Decode(&req); err != nil {
		h.Log.Info("[HTTP] POST /api/v1/dispatch: invalid body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", err.Error())
		return
	}
	if err := records.Validate(req); err != nil {
		h.handleValidationError(w, "Invalid dispatch request", records.Messages(err))
		return
	}

	rides, err := records.ParseRides(req.Rides)
	if err != nil {
		h.handleRecordError(w, err)
		return
	}
	drivers, err := records.ParseDrivers(req.Drivers)
	if err != nil {
		h.handleRecordError(w, err)
		return
	}

	h.Log.Info("[HTTP] POST /api/v1/dispatch",
		zap.Int("rides", len(rides)),
		zap.Int("drivers", len(drivers)),
		zap.Bool("save", req.Save))

	res, err := h.Dispatcher.Dispatch(r.Context(), rides, drivers)
	partial := false
	if err != nil {
		if res == nil || !isContextError(err) {
			h.handleDispatchError(w, err)
			return
		}
		partial = true
	}

	resp := DispatchResponse{
		RunID:      res.RunID,
		Manifest:   res.Manifest,
		Cost:       res.Cost,
		Unassigned: res.Unassigned,
		Warnings:   res.Warnings,
		Rounds:     res.Rounds,
		Partial:    partial,
	}

	if req.Save && !partial {
		if err := h.Dispatcher.Save(r.Context(), res); err != nil {
			h.handleInternalError(w, err)
			return
		}
		resp.Saved = true
	}

	h.writeJSON(w, http.StatusOK, envelope{"data": resp})
}

func (h *Handler) handleRecordError(w http.ResponseWriter, err error) {
	var ierr *records.InputError
	if !errors.As(err, &ierr) {
		h.handleValidationError(w, err.Error(), nil)
		return
	}
	h.writeError(w, http.StatusBadRequest, "INVALID_RECORD", ierr.Error(), map[string]any{
		"kind":  ierr.Kind,
		"index": ierr.Index,
		"id":    ierr.ID,
		"field": ierr.Field,
	})
}

func (h *Handler) handleDispatchError(w http.ResponseWriter, err error) {
	var cerr *dispatch.ComputationError
	if errors.As(err, &cerr) {
		h.Log.Warn("[HTTP] Dispatch computation failed", zap.Error(err))
		h.writeError(w, http.StatusUnprocessableEntity, "COMPUTATION_FAILED", cerr.Error(), map[string]string{
			"stage": cerr.Stage,
		})
		return
	}
	h.handleInternalError(w, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
