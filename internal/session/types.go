package session

import (
	"time"

	"github.com/trustmesh/validation-engine/internal/scoring"
)

// #region worker-response

// WorkerResponse is one worker's answer to the session prompt.
// Immutable after creation.
type WorkerResponse struct {
	WorkerID  string
	Text      string
	LatencyMs int64
}

// #endregion

// #region record

// Record is a validation session row plus its ordered responses.
type Record struct {
	ValidationID string
	Prompt       string
	CreatedAt    time.Time
	Responses    []WorkerResponse

	Scored           bool
	TrustScore       int
	ConsensusReached bool
	Breakdown        scoring.Breakdown
	EvidenceCID      string
}

// #endregion

// #region history

// HistoryEntry is one completed validation in the history log.
type HistoryEntry struct {
	ValidationID     string    `json:"validationId"`
	Prompt           string    `json:"prompt"`
	TrustScore       int       `json:"trustScore"`
	ConsensusReached bool      `json:"consensus"`
	CreatedAt        time.Time `json:"timestamp"`
}

// #endregion
