package defs

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wall-clock layout used for measurement timestamps in
// persisted days and as the key of note overrides.
const TimestampLayout = "2006-01-02T15:04:00"

// DateLayout names a day.
const DateLayout = "2006-01-02"

type TimePoint interface {
	GetTime() time.Time
}

// Measurement is a single sensor observation. A nil Value means the sensor
// produced no reading at that time.
type Measurement struct {
	Time  time.Time `bson:"time"`
	Value *float64  `bson:"value"`
	Note  *string   `bson:"note"`
}

func (m *Measurement) GetTime() time.Time {
	return m.Time
}

// Key returns the note override key for the measurement.
func (m *Measurement) Key() string {
	return m.Time.Format(TimestampLayout)
}

type measurementJSON struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"glucose_value"`
	Note      *string  `json:"note"`
}

func (m Measurement) MarshalJSON() ([]byte, error) {
	return json.Marshal(measurementJSON{
		Timestamp: m.Time.Format(TimestampLayout),
		Value:     m.Value,
		Note:      m.Note,
	})
}

func (m *Measurement) UnmarshalJSON(b []byte) error {
	var mj measurementJSON
	if err := json.Unmarshal(b, &mj); err != nil {
		return err
	}
	t, err := time.Parse(TimestampLayout, mj.Timestamp)
	if err != nil {
		return fmt.Errorf("unable to parse timestamp %q: %w", mj.Timestamp, err)
	}
	m.Time, m.Value, m.Note = t, mj.Value, mj.Note
	return nil
}

// HighGlucosePeriod is a maximal run of consecutive above-threshold
// measurements together with its severity score.
type HighGlucosePeriod struct {
	StartTime    time.Time     `bson:"startTime"`
	StartValue   float64       `bson:"startValue"`
	EndTime      time.Time     `bson:"endTime"`
	EndValue     float64       `bson:"endValue"`
	Measurements []Measurement `bson:"measurements"`
	Points       float64       `bson:"points"`
}

func (p *HighGlucosePeriod) GetTime() time.Time {
	return p.StartTime
}

type periodJSON struct {
	StartTime    string        `json:"start_time"`
	StartValue   float64       `json:"start_value"`
	EndTime      string        `json:"end_time"`
	EndValue     float64       `json:"end_value"`
	Measurements []Measurement `json:"measurements"`
	Points       float64       `json:"points"`
}

func (p HighGlucosePeriod) MarshalJSON() ([]byte, error) {
	ms := p.Measurements
	if ms == nil {
		ms = []Measurement{}
	}
	return json.Marshal(periodJSON{
		StartTime:    p.StartTime.Format(TimestampLayout),
		StartValue:   p.StartValue,
		EndTime:      p.EndTime.Format(TimestampLayout),
		EndValue:     p.EndValue,
		Measurements: ms,
		Points:       p.Points,
	})
}

func (p *HighGlucosePeriod) UnmarshalJSON(b []byte) error {
	var pj periodJSON
	if err := json.Unmarshal(b, &pj); err != nil {
		return err
	}
	start, err := time.Parse(TimestampLayout, pj.StartTime)
	if err != nil {
		return fmt.Errorf("unable to parse start time %q: %w", pj.StartTime, err)
	}
	end, err := time.Parse(TimestampLayout, pj.EndTime)
	if err != nil {
		return fmt.Errorf("unable to parse end time %q: %w", pj.EndTime, err)
	}
	*p = HighGlucosePeriod{
		StartTime:    start,
		StartValue:   pj.StartValue,
		EndTime:      end,
		EndValue:     pj.EndValue,
		Measurements: pj.Measurements,
		Points:       pj.Points,
	}
	return nil
}

// Day is the unit of persistence: every measurement of one calendar day and
// the periods found in them.
type Day struct {
	Date               string              `json:"date" bson:"date"`
	Measurements       []Measurement       `json:"measurements" bson:"measurements"`
	HighGlucosePeriods []HighGlucosePeriod `json:"high_glucose_periods" bson:"highGlucosePeriods"`
}

// HasValues reports whether at least one measurement carries a reading.
func (d *Day) HasValues() bool {
	for _, m := range d.Measurements {
		if m.Value != nil {
			return true
		}
	}
	return false
}

// TotalPoints sums the points of every period of the day.
func (d *Day) TotalPoints() float64 {
	var total float64
	for _, p := range d.HighGlucosePeriods {
		total += p.Points
	}
	return total
}

// Float and String return pointers for optional measurement fields.
func Float(v float64) *float64 { return &v }

func String(s string) *string { return &s }
