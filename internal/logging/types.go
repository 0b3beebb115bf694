package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table. One entry
// is written per pipeline decision: scoring runs, gate verdicts,
// certificate dispatches.
type ProvenanceEntry struct {
	ValidationID string
	Stage        string // "score" | "gate" | "issue"
	Decision     string // "scored" | "authorize" | "reject" | "dispatched" | "failed"
	Reason       string
	CreatedAt    time.Time
}
// #endregion provenance-entry
