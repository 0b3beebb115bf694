package ledger

import (
	"fmt"

	"github.com/trustmesh/validation-engine/internal/evidence"
	"github.com/trustmesh/validation-engine/internal/scoring"
)

// #region verify

// VerifyEvidence recomputes the trust score from the raw similarity
// inputs of an evidence bundle and checks it against the recorded score.
// The recomputation calls the same scoring functions and constants as
// the service side; the ledger carries no second formula. The worker
// reputation component is an external signal and is taken from the
// bundle as recorded.
func VerifyEvidence(bundle evidence.Bundle) error {
	matrix := bundle.SimilarityMatrix
	if len(matrix) < scoring.MinWorkers {
		return fmt.Errorf("bundle %s: %d responses below minimum %d",
			bundle.ValidationID, len(matrix), scoring.MinWorkers)
	}
	for i, row := range matrix {
		if len(row) != len(matrix) {
			return fmt.Errorf("bundle %s: matrix row %d not square", bundle.ValidationID, i)
		}
	}

	latencies := make([]int64, len(bundle.Workers))
	for i, w := range bundle.Workers {
		latencies[i] = w.LatencyMs
	}

	outliers := scoring.Outliers(matrix)
	result := scoring.Score(matrix, outliers, latencies, bundle.Breakdown.WorkerReputation)

	if result.TrustScore != bundle.TrustScore {
		return fmt.Errorf("bundle %s: recomputed score %d != recorded %d",
			bundle.ValidationID, result.TrustScore, bundle.TrustScore)
	}
	if result.ConsensusReached != bundle.ConsensusReached {
		return fmt.Errorf("bundle %s: recomputed consensus %v != recorded %v",
			bundle.ValidationID, result.ConsensusReached, bundle.ConsensusReached)
	}
	if len(outliers) != len(bundle.OutlierFlags) {
		return fmt.Errorf("bundle %s: outlier flag count mismatch", bundle.ValidationID)
	}
	for i := range outliers {
		if outliers[i] != bundle.OutlierFlags[i] {
			return fmt.Errorf("bundle %s: outlier flag %d mismatch", bundle.ValidationID, i)
		}
	}
	return nil
}

// #endregion
