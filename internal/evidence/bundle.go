package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trustmesh/validation-engine/internal/scoring"
)

// #region bundle

// BundleVersion identifies the evidence serialization format.
const BundleVersion = "1.0.0"

// WorkerRecord is the per-worker proof-of-inference entry: the response
// is committed to by hash, never embedded.
type WorkerRecord struct {
	WorkerID     string `json:"workerId"`
	ResponseHash string `json:"responseHash"`
	LatencyMs    int64  `json:"latencyMs"`
}

// Verification names the algorithm and threshold that produced the score,
// so a bundle is auditable without reference to this codebase.
type Verification struct {
	Method    string `json:"method"`
	Algorithm string `json:"algorithm"`
	Threshold int    `json:"threshold"`
}

// Bundle is the content-addressable record of one scoring run. It is a
// deterministic function of its inputs: identical inputs serialize to
// byte-identical JSON, which is what makes the CID stable.
type Bundle struct {
	Version          string            `json:"version"`
	ValidationID     string            `json:"validationId"`
	Prompt           string            `json:"prompt"`
	Timestamp        string            `json:"timestamp"`
	Workers          []WorkerRecord    `json:"workers"`
	SimilarityMatrix [][]int           `json:"similarityMatrix"`
	OutlierFlags     []bool            `json:"outlierFlags"`
	Breakdown        scoring.Breakdown `json:"breakdown"`
	TrustScore       int               `json:"trustScore"`
	ConsensusReached bool              `json:"consensusReached"`
	Verification     Verification      `json:"verification"`
}

// #endregion

// #region assemble

// Input carries everything Assemble needs from the session and scorer.
type Input struct {
	ValidationID string
	Prompt       string
	// CreatedAt is the session creation time. The bundle timestamp comes
	// from here, not from the clock, so re-scoring is idempotent.
	CreatedAt time.Time
	WorkerIDs []string
	Responses []string
	Latencies []int64
	Result    scoring.Result
}

// Assemble builds the evidence bundle for one completed scoring run.
func Assemble(in Input) Bundle {
	workers := make([]WorkerRecord, len(in.WorkerIDs))
	for i := range in.WorkerIDs {
		workers[i] = WorkerRecord{
			WorkerID:     in.WorkerIDs[i],
			ResponseHash: HashResponse(in.Responses[i]),
			LatencyMs:    in.Latencies[i],
		}
	}

	return Bundle{
		Version:          BundleVersion,
		ValidationID:     in.ValidationID,
		Prompt:           in.Prompt,
		Timestamp:        in.CreatedAt.UTC().Format(time.RFC3339Nano),
		Workers:          workers,
		SimilarityMatrix: in.Result.Matrix,
		OutlierFlags:     in.Result.OutlierFlags,
		Breakdown:        in.Result.Breakdown,
		TrustScore:       in.Result.TrustScore,
		ConsensusReached: in.Result.ConsensusReached,
		Verification: Verification{
			Method:    "poi-pouw",
			Algorithm: "lexical-similarity+outlier-detection",
			Threshold: scoring.ConsensusThreshold,
		},
	}
}

// #endregion

// #region canonical

// Canonical returns the canonical serialization of the bundle: JSON with
// struct-declared key order and no insignificant whitespace.
func (b Bundle) Canonical() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return data, nil
}

// #endregion

// #region response-hash

// HashResponse returns the hex sha256 of a worker response text.
func HashResponse(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// #endregion
