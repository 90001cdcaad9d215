package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/aislemap/internal/apperr"
	"github.com/starford/aislemap/internal/mapservice"
	"github.com/starford/aislemap/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *mapservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *mapservice.Service) *Handler {
	return &Handler{svc: svc}
}

// VisibleMarkers handles GET /api/markers.
//
//	@Summary		List the markers currently shown on the map
//	@Tags			markers
//	@Produce		json
//	@Success		200	{object}	MarkersResponse
//	@Security		BearerAuth
//	@Router			/markers [get]
func (h *Handler) VisibleMarkers(w http.ResponseWriter, r *http.Request) {
	v := h.svc.View(r.Context())
	writeJSON(w, http.StatusOK, MarkersResponse{Markers: v.Visible, ShowAll: v.ShowAll})
}

// AllMarkers handles GET /api/markers/all.
//
//	@Summary		List every marker regardless of the selection
//	@Tags			markers
//	@Produce		json
//	@Success		200	{object}	MarkersResponse
//	@Security		BearerAuth
//	@Router			/markers/all [get]
func (h *Handler) AllMarkers(w http.ResponseWriter, r *http.Request) {
	markers := h.svc.AllMarkers(r.Context())
	if markers == nil {
		markers = []models.MarkerRecord{}
	}
	writeJSON(w, http.StatusOK, MarkersResponse{Markers: markers, ShowAll: true})
}

// MarkerImage handles GET /api/markers/{id}/image.
//
//	@Summary		Image shown when a marker is pressed
//	@Tags			markers
//	@Produce		json
//	@Param			id	path		string	true	"Marker id"
//	@Success		200	{object}	MarkerImageResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/markers/{id}/image [get]
func (h *Handler) MarkerImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, err := h.svc.MarkerImage(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no image for marker"))
		} else {
			slog.Error("marker image failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, MarkerImageResponse{MarkerID: id, ImageURL: url})
}

// Selection handles GET /api/selection.
//
//	@Summary		Grouped selection in accepted categories
//	@Tags			selection
//	@Produce		json
//	@Success		200	{object}	SelectionResponse
//	@Security		BearerAuth
//	@Router			/selection [get]
func (h *Handler) Selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SelectionResponse{Items: h.svc.View(r.Context()).Grouped})
}

// AddItem handles POST /api/selection.
//
//	@Summary		Add an item to the selection
//	@Tags			selection
//	@Accept			json
//	@Produce		json
//	@Param			body	body		mapservice.AddItemRequest	true	"Item to add"
//	@Success		201		{object}	models.SelectionRecord
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/selection [post]
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req mapservice.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	rec, err := h.svc.AddItem(r.Context(), req)
	if err != nil {
		var verr validation.Errors
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorBody(verr.Error()))
			return
		}
		slog.Error("add item failed", slog.String("name", req.Name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RemoveItem handles DELETE /api/selection/{id}.
//
// The item disappears from the view immediately. By default the request
// waits for the outcome; with wait=false it answers 202 once the removal
// is pending.
//
//	@Summary		Remove an item from the selection
//	@Tags			selection
//	@Produce		json
//	@Param			id		path	string	true	"Selection record id"
//	@Param			wait	query	bool	false	"Wait for the external store to acknowledge"
//	@Success		204		"Removal committed"
//	@Success		202		{object}	RemovalResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/selection/{id} [delete]
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.svc.RemoveItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("remove item failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	if wait, err := strconv.ParseBool(r.URL.Query().Get("wait")); err == nil && !wait {
		writeJSON(w, http.StatusAccepted, RemovalResponse{
			Token:    p.Token,
			RecordID: p.RecordID,
			State:    p.State().String(),
		})
		return
	}

	if err := p.Wait(r.Context()); err != nil {
		if errors.Is(err, apperr.ErrRemovalFailed) {
			writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
			return
		}
		// Client went away; the removal carries on without it.
		slog.Debug("remove item: wait abandoned", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// View handles GET /api/view.
//
//	@Summary		Current derived view
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	models.View
//	@Security		BearerAuth
//	@Router			/view [get]
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.View(r.Context()))
}

// SetShowAll handles PUT /api/view/show-all.
//
//	@Summary		Set the show-all flag
//	@Tags			view
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ShowAllRequest	true	"Flag value"
//	@Success		200		{object}	models.View
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/view/show-all [put]
func (h *Handler) SetShowAll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	var req ShowAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ShowAll == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("show_all is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.SetShowAll(r.Context(), *req.ShowAll))
}

// ToggleShowAll handles POST /api/view/show-all/toggle.
//
//	@Summary		Flip the show-all flag
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	models.View
//	@Security		BearerAuth
//	@Router			/view/show-all/toggle [post]
func (h *Handler) ToggleShowAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ToggleShowAll(r.Context()))
}

// Removals handles GET /api/removals.
//
//	@Summary		Recent removals, newest first
//	@Tags			removals
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"
//	@Success		200		{object}	RemovalsResponse
//	@Security		BearerAuth
//	@Router			/removals [get]
func (h *Handler) Removals(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.Removals(r.Context(), limit)
	if err != nil {
		slog.Error("list removals failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RemovalsResponse{Removals: entries})
}
