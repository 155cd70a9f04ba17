package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/models"
	pkghttp "github.com/aquameter/aquameter/pkg/http"
)

// UsageListing is the slice of the usage service the report needs
type UsageListing interface {
	List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error)
}

// ReportHandler streams usage history exports
type ReportHandler struct {
	usage UsageListing
}

func NewReportHandler(usage UsageListing) *ReportHandler {
	return &ReportHandler{usage: usage}
}

// UsageCSV writes the caller's reading history as a CSV attachment.
// Supports the same ?days= filter as the JSON listing.
func (h *ReportHandler) UsageCSV(w http.ResponseWriter, r *http.Request) {
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

	readings, err := h.usage.List(r.Context(), claims.UserID, since, 1000)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	filename := fmt.Sprintf("usage-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"timestamp", "amount_liters", "category", "location"})
	for _, reading := range readings {
		_ = cw.Write([]string{
			reading.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(reading.Amount, 'f', 2, 64),
			reading.Category,
			reading.Location,
		})
	}
	cw.Flush()
}
