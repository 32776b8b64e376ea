package stats

import (
	"glucolog/reporter/defs"

	"github.com/montanaflynn/stats"
)

type Severity int

const (
	Low Severity = iota
	Medium
	High
)

func (s Severity) String() string {
	return [...]string{"low", "medium", "high"}[s]
}

// Band classifies a day's total points.
func Band(points, medium, high float64) Severity {
	switch {
	case points >= high:
		return High
	case points >= medium:
		return Medium
	default:
		return Low
	}
}

type RangeAnalysis struct {
	BelowRange float64
	InRange    float64
	AboveRange float64
}

// TimeSpentInRange counts readings, not minutes; absent values are ignored.
func TimeSpentInRange(ms []defs.Measurement, lower, upper float64) RangeAnalysis {
	values := Values(ms)
	if len(values) == 0 {
		return RangeAnalysis{}
	}

	below, above := 0.0, 0.0
	for _, v := range values {
		switch {
		case v <= lower:
			below++
		case v >= upper:
			above++
		}
	}

	total := float64(len(values))
	in := total - below - above
	return RangeAnalysis{
		BelowRange: below / total,
		InRange:    in / total,
		AboveRange: above / total,
	}
}

type SummaryStatistics struct {
	Average   float64
	Deviation float64
	Min       float64
	Max       float64
}

func GlucoseSummary(ms []defs.Measurement) SummaryStatistics {
	values := Values(ms)
	avg, _ := stats.Mean(values)
	dev, _ := stats.StandardDeviation(values)
	lowest, _ := stats.Min(values)
	highest, _ := stats.Max(values)
	return SummaryStatistics{Average: avg, Deviation: dev, Min: lowest, Max: highest}
}

type DaySummary struct {
	SummaryStatistics
	RangeAnalysis

	Periods     int
	TotalPoints float64
	Severity    Severity
}

func Summarize(day *defs.Day, cfg defs.GlucoseConfig) DaySummary {
	total := day.TotalPoints()
	return DaySummary{
		SummaryStatistics: GlucoseSummary(day.Measurements),
		RangeAnalysis:     TimeSpentInRange(day.Measurements, cfg.Low, cfg.High),
		Periods:           len(day.HighGlucosePeriods),
		TotalPoints:       total,
		Severity:          Band(total, cfg.PointsMedium, cfg.PointsHigh),
	}
}

// Values returns the readings of ms, skipping absent ones.
func Values(ms []defs.Measurement) []float64 {
	values := make([]float64, 0, len(ms))
	for _, m := range ms {
		if m.Value != nil {
			values = append(values, *m.Value)
		}
	}
	return values
}
