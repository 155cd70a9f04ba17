package models

import (
	"time"
)

// Alert types
const (
	AlertTypeLeakage        = "leakage"
	AlertTypeHighUsage      = "high_usage"
	AlertTypeMonthlySummary = "monthly_summary"
)

// Alert severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert statuses. Transitions are forward-only: new -> read -> resolved,
// with new -> resolved allowed directly.
const (
	AlertStatusNew      = "new"
	AlertStatusRead     = "read"
	AlertStatusResolved = "resolved"
)

// Alert is a persisted notification raised by the leak detector or the
// monthly summary job. Only the status field is mutable after creation.
type Alert struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

var alertStatusRank = map[string]int{
	AlertStatusNew:      0,
	AlertStatusRead:     1,
	AlertStatusResolved: 2,
}

// CanTransitionTo reports whether moving the alert to newStatus is a legal
// forward transition. Status never regresses.
func (a *Alert) CanTransitionTo(newStatus string) bool {
	from, ok := alertStatusRank[a.Status]
	if !ok {
		return false
	}
	to, ok := alertStatusRank[newStatus]
	if !ok {
		return false
	}
	return to > from
}

// ValidAlertStatus reports whether status is one of the known statuses.
func ValidAlertStatus(status string) bool {
	_, ok := alertStatusRank[status]
	return ok
}
