// Package fsstore keeps one JSON document per day in a directory.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/store"

	"go.uber.org/zap"
)

// NotesFile shares the directory layout with day files and is never read as a day.
const NotesFile = "notes_override.json"

// Store keeps timestamps as wall-clock time; Location anchors them again
// when days are read back.
type Store struct {
	Dir      string
	Location *time.Location
	Logger   *zap.Logger
}

func New(dir string, loc *time.Location, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create day directory: %w", err)
	}
	return &Store{Dir: dir, Location: loc, Logger: logger}, nil
}

func (s *Store) path(date string) string {
	return filepath.Join(s.Dir, date+".json")
}

// WriteDay stores day, replacing any previous version. Days without
// measurements are not written.
func (s *Store) WriteDay(_ context.Context, day *defs.Day) error {
	if len(day.Measurements) == 0 {
		s.Logger.Debug("skipping empty day", zap.String("date", day.Date))
		return nil
	}

	out := *day
	if out.HighGlucosePeriods == nil {
		out.HighGlucosePeriods = []defs.HighGlucosePeriod{}
	}

	b, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode day %s: %w", day.Date, err)
	}

	s.Logger.Debug("writing day", zap.String("date", day.Date), zap.Int("measurements", len(day.Measurements)))
	if err := os.WriteFile(s.path(day.Date), b, 0o644); err != nil {
		return fmt.Errorf("unable to write day %s: %w", day.Date, err)
	}
	return nil
}

func (s *Store) ReadDay(_ context.Context, date string) (*defs.Day, error) {
	return s.readFile(s.path(date))
}

func (s *Store) readFile(path string) (*defs.Day, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to read %s: %w", filepath.Base(path), store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", filepath.Base(path), err)
	}

	var day defs.Day
	if err := json.Unmarshal(b, &day); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", filepath.Base(path), err)
	}
	s.anchor(&day)
	return &day, nil
}

func (s *Store) anchor(day *defs.Day) {
	if s.Location == nil {
		return
	}
	at := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, s.Location)
	}
	for i := range day.Measurements {
		day.Measurements[i].Time = at(day.Measurements[i].Time)
	}
	for i := range day.HighGlucosePeriods {
		p := &day.HighGlucosePeriods[i]
		p.StartTime, p.EndTime = at(p.StartTime), at(p.EndTime)
		for j := range p.Measurements {
			p.Measurements[j].Time = at(p.Measurements[j].Time)
		}
	}
}

// ReadDays returns every stored day that has measurements, newest first.
func (s *Store) ReadDays(_ context.Context) ([]defs.Day, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list days: %w", err)
	}

	days := make([]defs.Day, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == NotesFile {
			continue
		}
		day, err := s.readFile(filepath.Join(s.Dir, name))
		if err != nil {
			return nil, err
		}
		if len(day.Measurements) > 0 {
			days = append(days, *day)
		}
	}

	store.SortDays(days)
	return days, nil
}

func (s *Store) ReadMeasurements(ctx context.Context, start, end time.Time) ([]defs.Measurement, error) {
	days, err := s.ReadDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to read measurements: %w", err)
	}
	return store.Between(days, start, end), nil
}
