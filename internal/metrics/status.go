package metrics

import "sort"

// StatusCount is one row of the status-code histogram.
type StatusCount struct {
	Code  int
	Count int64
}

// SortStatusCodes converts a status histogram into rows sorted by descending
// count, then by code for stability. Code 0 means no response was received.
func SortStatusCodes(codes map[int]int64) []StatusCount {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]StatusCount, 0, len(codes))
	for code, count := range codes {
		rows = append(rows, StatusCount{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// ReasonCount is one row of the network error breakdown.
type ReasonCount struct {
	Reason string
	Count  int64
}

// SortReasons orders a network error breakdown like SortStatusCodes.
func SortReasons(reasons map[string]int64) []ReasonCount {
	if len(reasons) == 0 {
		return nil
	}
	rows := make([]ReasonCount, 0, len(reasons))
	for reason, count := range reasons {
		rows = append(rows, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Reason < rows[j].Reason
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
