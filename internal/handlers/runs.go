package handlers

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"ride-dispatcher/internal/dispatch"
	"ride-dispatcher/internal/models"
)

// RunListResponse represents the list response
type RunListResponse struct {
	Runs   []models.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// RunDetailResponse is a stored run with its manifest rebuilt from assignments
type RunDetailResponse struct {
	Run         models.Run             `json:"run"`
	Manifest    models.Manifest        `json:"manifest"`
	Assignments []models.RunAssignment `json:"assignments"`
	Unassigned  []models.ID            `json:"unassigned"`
}

// HandleListRuns handles GET /api/v1/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 200)
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	runs, total, err := h.Runs.List(r.Context(), limit, offset)
	if err != nil {
		h.handleInternalError(w, err)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	h.writeJSON(w, http.StatusOK, envelope{"data": RunListResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}})
}

// HandleGetRun handles GET /api/v1/runs/:id
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")

	run, assignments, unassigned, err := h.Runs.GetByID(r.Context(), id)
	if h.checkNotFound(err) {
		h.handleNotFound(w, "Run not found")
		return
	}
	if err != nil {
		h.handleInternalError(w, err)
		return
	}

	manifest := manifestFromRun(run, assignments)
	if assignments == nil {
		assignments = []models.RunAssignment{}
	}
	if unassigned == nil {
		unassigned = []models.ID{}
	}

	h.writeJSON(w, http.StatusOK, envelope{"data": RunDetailResponse{
		Run:         *run,
		Manifest:    manifest,
		Assignments: assignments,
		Unassigned:  unassigned,
	}})
}

// HandleDeleteRun handles DELETE /api/v1/runs/:id
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")

	err := h.Runs.Delete(r.Context(), id)
	if h.checkNotFound(err) {
		h.handleNotFound(w, "Run not found")
		return
	}
	if err != nil {
		h.handleInternalError(w, err)
		return
	}

	h.Log.Info("[HTTP] Deleted run", zap.String("run_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearDistanceCache handles DELETE /api/v1/distance-cache
func (h *Handler) HandleClearDistanceCache(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.Cache.Clear(r.Context()); err != nil {
		h.handleInternalError(w, err)
		return
	}
	h.Log.Info("[HTTP] Distance cache cleared")
	h.writeJSON(w, http.StatusOK, envelope{"data": map[string]bool{"cleared": true}})
}

func manifestFromRun(run *models.Run, stored []models.RunAssignment) models.Manifest {
	assignments := make([]models.Assignment, 0, len(stored))
	for _, a := range stored {
		assignments = append(assignments, models.Assignment{
			DriverID:    a.DriverID,
			RideID:      a.RideID,
			Sequence:    a.Sequence,
			CostToStart: a.CostToStart,
		})
	}
	return dispatch.BuildManifest(assignments, run.Cost.Total)
}
