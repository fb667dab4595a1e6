package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one day's reduced metrics, consumed by a single optimizer run.
type Snapshot struct {
	Day              string                  `json:"day"`
	Sessions         int                     `json:"sessions"`
	ViewabilityPct   float64                 `json:"viewability_pct"`
	BouncePct        float64                 `json:"bounce_pct"`
	ReaderPct        float64                 `json:"reader_pct"`
	AvgAdsPerSession float64                 `json:"avg_ads_per_session"`
	Zones            map[string]ZoneSnapshot `json:"zones"`
	CreatedAt        time.Time               `json:"created_at"`
}

// ZoneSnapshot is the viewability of one zone with enough impressions.
type ZoneSnapshot struct {
	Format         string  `json:"format,omitempty"`
	Impressions    int     `json:"impressions"`
	Viewable       int     `json:"viewable"`
	ViewabilityPct float64 `json:"viewability_pct"`
}

// RunStatus is the outcome of one optimizer invocation.
type RunStatus string

const (
	RunOptimized RunStatus = "optimized"
	RunNoChange  RunStatus = "no_change"
	RunSkip      RunStatus = "skip"
)

// RuleSafety identifies the unbudgeted safety-rail change.
const RuleSafety = "SAFETY"

// Change is one setting adjustment with its justification.
type Change struct {
	Setting  string `json:"setting"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
}

// OptimizerLogEntry records a single optimizer invocation, whatever its outcome.
type OptimizerLogEntry struct {
	ID         uuid.UUID `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Day        string    `json:"day"`
	Status     RunStatus `json:"status"`
	SkipReason string    `json:"skip_reason,omitempty"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
	Changes    []Change  `json:"changes"`
}
