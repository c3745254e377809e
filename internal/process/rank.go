package process

import "sort"

// Rank orders snapshots by CPU usage descending, breaking ties by pid ascending,
// and keeps at most topN of them. The input slice is left untouched.
func Rank(snapshots []Snapshot, topN int) []Snapshot {
	if topN <= 0 {
		topN = DefaultTopN
	}

	ranked := make([]Snapshot, len(snapshots))
	copy(ranked, snapshots)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CPUPercent != ranked[j].CPUPercent {
			return ranked[i].CPUPercent > ranked[j].CPUPercent
		}
		return ranked[i].PID < ranked[j].PID
	})

	if topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}
