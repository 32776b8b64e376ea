package store

import (
	"sort"

	"glucolog/reporter/defs"
)

func sortByTime(ms []defs.Measurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Time.Before(ms[j].Time)
	})
}

// SortDays orders days newest first.
func SortDays(days []defs.Day) {
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date > days[j].Date
	})
}
