package scoring

// #region policy

// Policy constants shared by the service-side scorer and the ledger-side
// verifier. Both sides must reference these exact values; there is no
// second copy of the formula anywhere in the repository.
const (
	// MinWorkers is the hard precondition on response count before scoring.
	MinWorkers = 3

	// ConsensusThreshold is the trust score at or above which consensus
	// is reached and certificate issuance may be authorized.
	ConsensusThreshold = 70

	// OutlierFactor flags a response whose mean peer similarity falls
	// below this fraction of the group mean.
	OutlierFactor = 0.65

	// DefaultReputation is the worker-reputation component used when no
	// external reputation signal is available.
	DefaultReputation = 10
)

// Similarity blend weights. Lexical/structural agreement dominates;
// raw length matching is a weak signal.
const (
	weightJaccard     = 0.35
	weightBigram      = 0.35
	weightSubstring   = 0.15
	weightLengthRatio = 0.15
)

// Composite score component caps: 60 + 20 + 10 + 10 = 100.
const (
	maxSemantic   = 60
	maxAgreement  = 20
	maxTiming     = 10
	maxReputation = 10
)

// #endregion

// #region breakdown

// Breakdown itemizes the four components of a trust score.
type Breakdown struct {
	SemanticSimilarity int `json:"semanticSimilarity"`
	ConsensusRatio     int `json:"consensusRatio"`
	TimeConsistency    int `json:"timeConsistency"`
	WorkerReputation   int `json:"workerReputation"`
}

// Total sums the components, clamped to 100.
func (b Breakdown) Total() int {
	total := b.SemanticSimilarity + b.ConsensusRatio + b.TimeConsistency + b.WorkerReputation
	if total > 100 {
		total = 100
	}
	return total
}

// #endregion

// #region result

// Result is the full output of one scoring run.
type Result struct {
	TrustScore       int
	ConsensusReached bool
	Breakdown        Breakdown
	Matrix           [][]int
	OutlierFlags     []bool
}

// #endregion
