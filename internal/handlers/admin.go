package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/services"
	pkghttp "github.com/aquameter/aquameter/pkg/http"
)

// AdminServiceInterface defines the interface for the admin surface
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	Stats(ctx context.Context) (*services.SystemStats, error)
}

// AdminUsageListerInterface exposes cross-user reads used only by admins
type AdminUsageListerInterface interface {
	ListAll(ctx context.Context, limit int) ([]*models.UsageReading, error)
}

// AdminAlertListerInterface exposes cross-user alert reads
type AdminAlertListerInterface interface {
	ListAll(ctx context.Context, limit int) ([]*models.Alert, error)
}

// AdminHandler handles admin-only HTTP requests. Role enforcement happens
// in the route middleware; handlers assume an admin caller.
type AdminHandler struct {
	adminService AdminServiceInterface
	usageService AdminUsageListerInterface
	alertService AdminAlertListerInterface
}

func NewAdminHandler(adminService AdminServiceInterface, usageService AdminUsageListerInterface, alertService AdminAlertListerInterface) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		usageService: usageService,
		alertService: alertService,
	}
}

// ListUsers pages through all accounts
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			offset = v
		}
	}

	users, err := h.adminService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// Stats returns system-wide counters
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.Stats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// ListUsage returns recent readings across every user
func (h *AdminHandler) ListUsage(w http.ResponseWriter, r *http.Request) {
	readings, err := h.usageService.ListAll(r.Context(), parseLimit(r, 100))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// ListAlerts returns recent alerts across every user
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alertService.ListAll(r.Context(), parseLimit(r, 100))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
