package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/services"
	pkghttp "github.com/aquameter/aquameter/pkg/http"
)

// UsageServiceInterface defines the interface for usage business logic
type UsageServiceInterface interface {
	Submit(ctx context.Context, userID string, amount float64, location string, timestamp time.Time) (*services.SubmitResult, error)
	List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error)
	Stats(ctx context.Context, userID string) (*models.UsageStats, error)
}

// UsageHandler handles usage reading HTTP requests
type UsageHandler struct {
	service UsageServiceInterface
}

func NewUsageHandler(service UsageServiceInterface) *UsageHandler {
	return &UsageHandler{service: service}
}

type SubmitUsageRequest struct {
	Amount    float64    `json:"amount" validate:"required,gt=0"`
	Location  string     `json:"location" validate:"max=100"`
	Timestamp *time.Time `json:"timestamp"`
}

// SubmitUsageResponse returns the stored reading together with any alerts
// the submission raised
type SubmitUsageResponse struct {
	Reading *models.UsageReading `json:"reading"`
	Alerts  []*models.Alert      `json:"alerts"`
}

// Submit stores a reading for the authenticated user
func (h *UsageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req SubmitUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	result, err := h.service.Submit(r.Context(), claims.UserID, req.Amount, req.Location, ts)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Amount must be positive")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	alerts := result.Alerts
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	pkghttp.WriteJSON(w, http.StatusCreated, SubmitUsageResponse{
		Reading: result.Reading,
		Alerts:  alerts,
	})
}

// List returns the user's readings, newest first. Supports ?days=N and
// ?limit=N query filters.
func (h *UsageHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 || days > 3650 {
			pkghttp.WriteBadRequest(w, "days must be a positive integer")
			return
		}
		since = time.Now().AddDate(0, 0, -days)
	}

	limit := parseLimit(r, 100)

	readings, err := h.service.List(r.Context(), claims.UserID, since, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// Stats summarizes the user's reading history
func (h *UsageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	stats, err := h.service.Stats(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// parseLimit reads ?limit=N, falling back to def when absent or invalid
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
