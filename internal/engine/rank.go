package engine

import "sort"

// ClassAverage is one student's term average inside a class, the immutable
// input to ranking. Ranks are always assigned from a full snapshot of these,
// never from a running tally, so the outcome cannot depend on computation
// order.
type ClassAverage struct {
	StudentID int64
	Average   float64
}

// Rank assigns 1-based competition ranks by descending average: tied
// students share a rank and the following rank skips accordingly
// (averages 90, 90, 75 rank as 1, 1, 3).
func Rank(averages []ClassAverage) map[int64]int {
	sorted := make([]ClassAverage, len(averages))
	copy(sorted, averages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Average > sorted[j].Average
	})

	ranks := make(map[int64]int, len(sorted))
	for i, ca := range sorted {
		if i > 0 && ca.Average == sorted[i-1].Average {
			ranks[ca.StudentID] = ranks[sorted[i-1].StudentID]
			continue
		}
		ranks[ca.StudentID] = i + 1
	}
	return ranks
}
