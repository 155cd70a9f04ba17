package detection

import (
	"fmt"

	"github.com/aquameter/aquameter/internal/models"
)

// LeakParams tune the leak heuristic. Factor is the multiple of the
// baseline a reading must reach, Floor the absolute minimum in liters
// that guards against flagging spikes over a near-zero baseline,
// MinHistory the number of prior readings required before the heuristic
// applies at all.
type LeakParams struct {
	Factor     float64
	Floor      float64
	MinHistory int
}

// Finding is one alert-worthy condition detected for a reading.
type Finding struct {
	Type     string
	Severity string
	Message  string
}

// Evaluate inspects a new reading against the baseline of prior amounts
// and returns zero, one, or two findings: at most one leakage and at most
// one high-usage. Pure; persistence and deduplication are the caller's
// concern.
func Evaluate(amount float64, category string, baseline []float64, t Thresholds, p LeakParams) []Finding {
	findings := make([]Finding, 0, 2)

	if len(baseline) >= p.MinHistory {
		mean := mean(baseline)
		if mean > 0 && amount >= mean*p.Factor && amount >= p.Floor {
			findings = append(findings, Finding{
				Type:     models.AlertTypeLeakage,
				Severity: models.SeverityHigh,
				Message: fmt.Sprintf(
					"Possible leak: reading of %.2fL is %.1fx your recent average of %.2fL",
					amount, amount/mean, mean),
			})
		}
	}

	switch category {
	case models.CategoryHigh:
		findings = append(findings, Finding{
			Type:     models.AlertTypeHighUsage,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("High water usage: %.2fL recorded", amount),
		})
	case models.CategoryCritical:
		findings = append(findings, Finding{
			Type:     models.AlertTypeHighUsage,
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("Critical water usage: %.2fL recorded", amount),
		})
	}

	return findings
}

func mean(amounts []float64) float64 {
	if len(amounts) == 0 {
		return 0
	}

	var sum float64
	for _, a := range amounts {
		sum += a
	}
	return sum / float64(len(amounts))
}
