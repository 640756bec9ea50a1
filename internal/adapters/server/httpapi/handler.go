// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ycnlabs/prospect/internal/adapters/server/common"
	"github.com/ycnlabs/prospect/internal/app"
	"github.com/ycnlabs/prospect/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	svc common.LeadService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the lead coordinator.
func NewHandler(svc common.LeadService) *Handler {
	return &Handler{svc: svc}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "leads":
		switch r.Method {
		case http.MethodGet:
			h.handleListLeads(w, r)
		case http.MethodPost:
			h.handleCreateLead(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	default:
		if id, ok := resolveLeadActionID(path, "move"); ok {
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, http.MethodPost)
				return
			}
			h.handleMoveLead(w, r, id)
			return
		}
		if id, ok := resolveLeadID(path); ok {
			if r.Method != http.MethodDelete {
				writeMethodNotAllowed(w, http.MethodDelete)
				return
			}
			h.handleDeleteLead(w, r, id)
			return
		}
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListLeads serves GET `/leads`.
func (h *Handler) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := common.ListLeads(r.Context(), h.svc)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

type createLeadRequest struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

// handleCreateLead serves POST `/leads`.
func (h *Handler) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
		return
	}
	column := domain.Column(strings.TrimSpace(strings.ToLower(req.Column)))
	if column == "" {
		column = domain.ColumnCold
	}
	rating, err := column.Rating()
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	lead, err := h.svc.CreateLead(r.Context(), req.Name, rating)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.PayloadFromLead(lead))
}

type moveLeadRequest struct {
	Column string `json:"column"`
}

// handleMoveLead serves POST `/leads/{id}/move`.
func (h *Handler) handleMoveLead(w http.ResponseWriter, r *http.Request, id string) {
	var req moveLeadRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
		return
	}
	column := domain.Column(strings.TrimSpace(strings.ToLower(req.Column)))
	if err := h.svc.MoveLead(r.Context(), id, column); err != nil {
		writeErrorFrom(w, err)
		return
	}
	lead, ok := h.svc.Board().Get(id)
	if !ok {
		writeErrorFrom(w, app.ErrLeadNotFound)
		return
	}
	writeJSON(w, http.StatusOK, common.PayloadFromLead(lead))
}

// handleDeleteLead serves DELETE `/leads/{id}`.
func (h *Handler) handleDeleteLead(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.DeleteLead(r.Context(), id); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// normalizePath trims the mount prefix and surrounding slashes.
func normalizePath(path string) string {
	return strings.Trim(path, "/")
}

// resolveLeadID matches `leads/{id}`.
func resolveLeadID(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] != "leads" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// resolveLeadActionID matches `leads/{id}/{action}`.
func resolveLeadActionID(path, action string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "leads" || parts[1] == "" || parts[2] != action {
		return "", false
	}
	return parts[1], true
}

// writeErrorFrom maps coordinator errors onto structured API failures.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrAuthRequired):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "auth_required",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrLeadNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidColumn), errors.Is(err, domain.ErrInvalidID):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusBadGateway, APIError{
			Code:    "upstream_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer func() { _ = reader.Close() }()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode request body: trailing content")
	}
	return nil
}
