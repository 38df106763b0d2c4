// Package api exposes the management HTTP/JSON surface: endpoint CRUD,
// synthetic test events, delivery inspection and manual retry, and the
// producer-facing event publish.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/driftmarket/hookline/internal/admin"
	"github.com/driftmarket/hookline/internal/auth"
	"github.com/driftmarket/hookline/internal/delivery"
	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
)

type Handler struct {
	svc    *admin.Service
	router *delivery.Router
	log    *logging.Logger
}

func NewHandler(svc *admin.Service, router *delivery.Router, log *logging.Logger) *Handler {
	return &Handler{svc: svc, router: router, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hook.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, hook.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, hook.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.log.Plain().WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok || ownerID == "" {
		http.Error(w, "missing owner identity", http.StatusUnauthorized)
		return "", false
	}
	return ownerID, true
}

type createEndpointRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (h *Handler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, hook.Validationf("invalid request body"))
		return
	}
	// The create response is the only place the secret ever appears.
	ep, err := h.svc.CreateEndpoint(r.Context(), ownerID, req.URL, req.Events)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	eps, err := h.svc.ListEndpoints(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if eps == nil {
		eps = []*hook.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (h *Handler) getEndpoint(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	ep, err := h.svc.GetEndpoint(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var patch admin.EndpointPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, hook.Validationf("invalid request body"))
		return
	}
	ep, err := h.svc.UpdateEndpoint(r.Context(), ownerID, r.PathValue("id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteEndpoint(r.Context(), ownerID, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) testEndpoint(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.TestEndpoint(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := hook.DeliveryFilter{
		EndpointID: q.Get("endpoint_id"),
		Event:      q.Get("event"),
		Status:     hook.DeliveryStatus(q.Get("status")),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, hook.Validationf("invalid from timestamp"))
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, hook.Validationf("invalid to timestamp"))
			return
		}
		f.To = t
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	recs, err := h.svc.ListDeliveries(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*hook.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetDelivery(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) retryDelivery(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.RetryDelivery(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type publishEventRequest struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// publishEvent is the producer-facing entry point over HTTP. The fan-out
// runs detached; the producer never waits on or observes endpoint outcomes.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, hook.Validationf("invalid request body"))
		return
	}
	if req.EventType == "" || req.Data == nil {
		h.writeError(w, hook.Validationf("event_type and data are required"))
		return
	}

	go h.router.Deliver(context.WithoutCancel(r.Context()), req.EventType, req.Data)

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}
