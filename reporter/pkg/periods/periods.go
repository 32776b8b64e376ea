// Package periods finds high glucose periods in a day of measurements and
// scores each one by the excess glucose accumulated over its duration.
package periods

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"glucolog/reporter/defs"
)

var ErrMalformedInput = errors.New("malformed input")

type state int

const (
	idle state = iota
	inEpisode
)

// sweeper walks time ordered measurements and accumulates periods.
type sweeper struct {
	threshold float64
	state     state

	members  []defs.Measurement
	lastSeen *defs.Measurement

	periods []defs.HighGlucosePeriod
}

// Analyze returns the high glucose periods of ms against threshold, in
// chronological order. The input is not modified and need not be sorted;
// measurements sharing a timestamp keep their relative input order.
//
// A measurement without a value neither opens nor closes a period. A period
// still open when the input ends closes on the last measurement with a
// value, and that final member scores nothing since no duration follows it.
func Analyze(ms []defs.Measurement, threshold float64) ([]defs.HighGlucosePeriod, error) {
	if err := validate(ms, threshold); err != nil {
		return nil, err
	}

	sorted := make([]defs.Measurement, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	sw := sweeper{threshold: threshold, periods: []defs.HighGlucosePeriod{}}
	for i := range sorted {
		sw.next(&sorted[i])
	}
	sw.end()

	return sw.periods, nil
}

func validate(ms []defs.Measurement, threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("%w: threshold %v is not finite", ErrMalformedInput, threshold)
	}
	for i, m := range ms {
		if m.Time.IsZero() {
			return fmt.Errorf("%w: measurement %d has no timestamp", ErrMalformedInput, i)
		}
		if m.Value != nil && (math.IsNaN(*m.Value) || math.IsInf(*m.Value, 0)) {
			return fmt.Errorf("%w: measurement %d at %s has value %v",
				ErrMalformedInput, i, m.Time.Format(defs.TimestampLayout), *m.Value)
		}
	}
	return nil
}

func (sw *sweeper) next(m *defs.Measurement) {
	if m.Value == nil {
		return
	}

	above := *m.Value > sw.threshold
	switch {
	case above && sw.state == idle:
		sw.state = inEpisode
		sw.members = []defs.Measurement{*m}
	case above && sw.state == inEpisode:
		sw.members = append(sw.members, *m)
	case !above && sw.state == inEpisode:
		sw.close(m.Time, m.Time)
	}
	sw.lastSeen = m
}

func (sw *sweeper) end() {
	if sw.state != inEpisode {
		return
	}
	// The last measurement with a value is the final member of the open period.
	sw.close(sw.lastSeen.Time, time.Time{})
}

// close finishes the open period. A zero boundary marks a period truncated
// by the end of input.
func (sw *sweeper) close(endTime, boundary time.Time) {
	first, last := sw.members[0], sw.members[len(sw.members)-1]
	sw.periods = append(sw.periods, defs.HighGlucosePeriod{
		StartTime:    first.Time,
		StartValue:   *first.Value,
		EndTime:      endTime,
		EndValue:     *last.Value,
		Measurements: sw.members,
		Points:       score(sw.members, boundary, sw.threshold),
	})
	sw.members = nil
	sw.state = idle
}

// score integrates the excess over threshold as a step function: each member
// holds its value until the next member, the last one until boundary.
func score(members []defs.Measurement, boundary time.Time, threshold float64) float64 {
	var points float64
	for i, m := range members {
		var next time.Time
		if i < len(members)-1 {
			next = members[i+1].Time
		} else if boundary.IsZero() {
			continue
		} else {
			next = boundary
		}
		points += (*m.Value - threshold) * next.Sub(m.Time).Minutes()
	}
	return Round(points)
}

// Round rounds to two decimal places, halves away from zero.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
