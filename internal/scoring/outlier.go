package scoring

// #region outliers

// Outliers flags responses whose mean similarity to their peers falls
// below OutlierFactor × (mean of all per-response means). With fewer than
// 2 responses no outliers are possible.
func Outliers(matrix [][]int) []bool {
	n := len(matrix)
	flags := make([]bool, n)
	if n < 2 {
		return flags
	}

	rowMeans := make([]float64, n)
	var groupSum float64
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sum += float64(matrix[i][j])
		}
		rowMeans[i] = sum / float64(n-1)
		groupSum += rowMeans[i]
	}
	groupMean := groupSum / float64(n)

	for i := 0; i < n; i++ {
		flags[i] = rowMeans[i] < OutlierFactor*groupMean
	}
	return flags
}

// #endregion
