package detection

import (
	"github.com/aquameter/aquameter/internal/models"
)

// Thresholds are the category boundaries in liters. A reading is Normal
// below High, High from High up to but not including Critical, and
// Critical at or above Critical.
type Thresholds struct {
	High     float64
	Critical float64
}

// Classify maps a reading amount to its usage category. Pure and
// deterministic; the category is derived here and never user-supplied.
func Classify(amount float64, t Thresholds) string {
	switch {
	case amount >= t.Critical:
		return models.CategoryCritical
	case amount >= t.High:
		return models.CategoryHigh
	default:
		return models.CategoryNormal
	}
}
