// Package ingest turns glucose meter CSV exports into per-day measurements.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"glucolog/reporter/defs"

	"go.uber.org/zap"
)

// Export layout.
const (
	TimeLayout  = "02-01-2006 15:04"
	HeaderLabel = "Znacznik czasu w urządzeniu"

	timeColumn    = 2
	glucoseColumn = 4
	noteColumn    = 13
	minColumns    = 14
)

var bom = []byte{0xEF, 0xBB, 0xBF}

type Parser struct {
	Logger   *zap.Logger
	Location *time.Location
}

func New(loc *time.Location, logger *zap.Logger) *Parser {
	return &Parser{Logger: logger, Location: loc}
}

// Parse reads one export and groups its measurements by calendar day.
// Rows that cannot be parsed are logged and skipped.
func (p *Parser) Parse(r io.Reader) (map[string]*defs.Day, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	// Column names.
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return map[string]*defs.Day{}, nil
		}
		return nil, fmt.Errorf("unable to read header: %w", err)
	}

	days := make(map[string]*defs.Day)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				p.Logger.Warn("unable to read row", zap.Int("line", line), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("unable to read csv: %w", err)
		}

		m, ok, err := p.parseRow(row)
		if err != nil {
			p.Logger.Warn("unable to process row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		date := m.Time.Format(defs.DateLayout)
		day, found := days[date]
		if !found {
			day = &defs.Day{
				Date:               date,
				Measurements:       []defs.Measurement{},
				HighGlucosePeriods: []defs.HighGlucosePeriod{},
			}
			days[date] = day
		}
		day.Measurements = append(day.Measurements, m)
	}

	p.Logger.Debug("parsed export", zap.Int("days", len(days)))
	return days, nil
}

// parseRow reports false for rows that carry nothing worth keeping.
func (p *Parser) parseRow(row []string) (defs.Measurement, bool, error) {
	if len(row) < minColumns {
		return defs.Measurement{}, false, nil
	}

	ts := strings.TrimSpace(row[timeColumn])
	if ts == "" || ts == HeaderLabel {
		return defs.Measurement{}, false, nil
	}

	t, err := time.ParseInLocation(TimeLayout, ts, p.Location)
	if err != nil {
		return defs.Measurement{}, false, fmt.Errorf("unable to parse timestamp %q: %w", ts, err)
	}

	var m defs.Measurement
	m.Time = t

	if raw := strings.TrimSpace(row[glucoseColumn]); raw != "" {
		v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil {
			return defs.Measurement{}, false, fmt.Errorf("unable to parse glucose %q: %w", raw, err)
		}
		m.Value = &v
	}
	if note := row[noteColumn]; note != "" {
		m.Note = &note
	}

	if m.Value == nil && m.Note == nil {
		return defs.Measurement{}, false, nil
	}
	return m, true, nil
}

// ParseFile parses the export at path.
func (p *Parser) ParseFile(path string) (map[string]*defs.Day, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open export: %w", err)
	}
	defer f.Close()

	return p.Parse(f)
}

// ParseDir parses every .csv file in dir, in name order, merging days that
// appear in more than one file.
func (p *Parser) ParseDir(dir string) (map[string]*defs.Day, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("unable to list exports: %w", err)
	}
	sort.Strings(paths)

	days := make(map[string]*defs.Day)
	for _, path := range paths {
		p.Logger.Info("processing export", zap.String("file", filepath.Base(path)))

		parsed, err := p.ParseFile(path)
		if err != nil {
			return nil, err
		}
		Merge(days, parsed)
	}
	return days, nil
}

// Merge folds the days of src into dst. Measurements sharing a timestamp
// are kept once, the one from src winning.
func Merge(dst, src map[string]*defs.Day) {
	for date, day := range src {
		existing, ok := dst[date]
		if !ok {
			existing = &defs.Day{
				Date:               date,
				Measurements:       []defs.Measurement{},
				HighGlucosePeriods: []defs.HighGlucosePeriod{},
			}
			dst[date] = existing
		}
		MergeDay(existing, day)
	}
}

// MergeDay adds the measurements of src to dst, replacing those of dst with
// the same timestamp, and leaves dst ordered by time.
func MergeDay(dst, src *defs.Day) {
	index := make(map[string]int, len(dst.Measurements)+len(src.Measurements))
	merged := make([]defs.Measurement, 0, len(dst.Measurements)+len(src.Measurements))

	add := func(m defs.Measurement) {
		if i, ok := index[m.Key()]; ok {
			merged[i] = m
			return
		}
		index[m.Key()] = len(merged)
		merged = append(merged, m)
	}
	for _, m := range dst.Measurements {
		add(m)
	}
	for _, m := range src.Measurements {
		add(m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	dst.Measurements = merged
}

// Dates returns the keys of days in ascending order.
func Dates(days map[string]*defs.Day) []string {
	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}
