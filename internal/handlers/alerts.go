package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	pkghttp "github.com/aquameter/aquameter/pkg/http"
)

// AlertServiceInterface defines the interface for alert business logic
type AlertServiceInterface interface {
	List(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error)
	Get(ctx context.Context, claims *models.TokenClaims, alertID string) (*models.Alert, error)
	UpdateStatus(ctx context.Context, claims *models.TokenClaims, alertID, newStatus string) (*models.Alert, error)
}

// AlertHandler handles alert HTTP requests
type AlertHandler struct {
	service AlertServiceInterface
}

func NewAlertHandler(service AlertServiceInterface) *AlertHandler {
	return &AlertHandler{service: service}
}

type UpdateAlertStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new read resolved"`
}

// List returns the caller's alerts, optionally filtered by ?status=
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status := r.URL.Query().Get("status")
	limit := parseLimit(r, 100)

	alerts, err := h.service.List(r.Context(), claims.UserID, status, limit)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Unknown status filter")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Get returns one alert by ID
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	alert, err := h.service.Get(r.Context(), claims, chi.URLParam(r, "id"))
	if err != nil {
		writeAlertError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// UpdateStatus moves an alert forward along its lifecycle
func (h *AlertHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UpdateAlertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	alert, err := h.service.UpdateStatus(r.Context(), claims, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeAlertError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

func writeAlertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Alert not found")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "You do not have access to this alert")
	case errors.Is(err, models.ErrInvalidTransition):
		pkghttp.WriteError(w, http.StatusConflict, "invalid_transition", "Alert status can only move forward")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Unknown status")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
