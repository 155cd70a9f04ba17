package models

import (
	"time"
)

// Usage categories, derived from the reading amount and never user-supplied.
const (
	CategoryNormal   = "Normal"
	CategoryHigh     = "High"
	CategoryCritical = "Critical"
)

// UsageReading is a single submitted water-usage measurement in liters.
// Readings are immutable once created.
type UsageReading struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageStats summarizes a user's reading history.
type UsageStats struct {
	TotalUsage   float64 `json:"total_usage"`
	AverageDaily float64 `json:"average_daily"`
	CurrentMonth float64 `json:"current_month"`
	LastMonth    float64 `json:"last_month"`
	Trend        string  `json:"trend"` // "increasing", "decreasing", "stable"
	TotalRecords int     `json:"total_records"`
}
