package scoring

import "math"

// #region consensus-ratio

// ConsensusRatio is the mean of the off-diagonal upper-triangle matrix
// entries, scaled to [0,1]. Defined as 0 with fewer than 2 responses.
func ConsensusRatio(matrix [][]int) float64 {
	n := len(matrix)
	if n < 2 {
		return 0
	}
	var sum float64
	count := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += float64(matrix[i][j])
			count++
		}
	}
	return sum / float64(count) / 100
}

// #endregion

// #region semantic

// SemanticComponent maps the consensus ratio onto 0-60 points. The
// mapping front-loads reward near full agreement and drops sharply below
// a ratio of 0.40.
func SemanticComponent(ratio float64) int {
	var pts float64
	switch {
	case ratio >= 0.60:
		pts = 60
	case ratio >= 0.50:
		pts = 54 + (ratio-0.50)*60
	case ratio >= 0.40:
		pts = 48 + (ratio-0.40)*60
	case ratio >= 0.30:
		pts = 36 + (ratio-0.30)*120
	default:
		pts = ratio * 120
	}
	return int(math.Round(pts))
}

// #endregion

// #region agreement

// AgreementComponent awards 0-20 points for the fraction of responses
// that are not outliers.
func AgreementComponent(outliers []bool) int {
	total := len(outliers)
	if total == 0 {
		return 0
	}
	valid := 0
	for _, flagged := range outliers {
		if !flagged {
			valid++
		}
	}
	return int(math.Round(float64(maxAgreement) * float64(valid) / float64(total)))
}

// #endregion

// #region timing

// TimingComponent awards 0-10 points for latency consistency across
// workers: 10 × (1 − coefficient of variation), clamped. Fewer than 2
// samples is trivially consistent.
func TimingComponent(latencies []int64) int {
	if len(latencies) < 2 {
		return maxTiming
	}
	var sum float64
	for _, l := range latencies {
		sum += float64(l)
	}
	mean := sum / float64(len(latencies))

	cv := 1.0
	if mean > 0 {
		var variance float64
		for _, l := range latencies {
			d := float64(l) - mean
			variance += d * d
		}
		variance /= float64(len(latencies))
		cv = math.Sqrt(variance) / mean
	}

	pts := int(math.Round(float64(maxTiming) * (1 - cv)))
	if pts < 0 {
		return 0
	}
	if pts > maxTiming {
		return maxTiming
	}
	return pts
}

// #endregion

// #region score

// Score combines the similarity matrix, outlier flags, worker latencies
// and the external reputation signal into a [0,100] trust score and the
// consensus verdict. Callers must enforce the MinWorkers precondition;
// every computation here is total.
func Score(matrix [][]int, outliers []bool, latencies []int64, reputation int) Result {
	if reputation < 0 {
		reputation = 0
	}
	if reputation > maxReputation {
		reputation = maxReputation
	}

	breakdown := Breakdown{
		SemanticSimilarity: SemanticComponent(ConsensusRatio(matrix)),
		ConsensusRatio:     AgreementComponent(outliers),
		TimeConsistency:    TimingComponent(latencies),
		WorkerReputation:   reputation,
	}
	total := breakdown.Total()

	return Result{
		TrustScore:       total,
		ConsensusReached: total >= ConsensusThreshold,
		Breakdown:        breakdown,
		Matrix:           matrix,
		OutlierFlags:     outliers,
	}
}

// #endregion
