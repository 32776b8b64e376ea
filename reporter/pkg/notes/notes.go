// Package notes stores user edited measurement notes keyed by timestamp.
package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"glucolog/reporter/defs"

	"go.uber.org/zap"
)

const FileName = "notes_override.json"

type Store interface {
	Get(key string) (string, bool)
	Set(key, note string) error
	Delete(key string) error
	All() map[string]string
}

// FileStore keeps every override in a single JSON object and rewrites the
// file on each change.
type FileStore struct {
	Path   string
	Logger *zap.Logger

	notes map[string]string
	sync.Mutex
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create notes directory: %w", err)
	}

	s := &FileStore{
		Path:   filepath.Join(dir, FileName),
		Logger: logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	s.notes = make(map[string]string)

	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to read notes: %w", err)
	}

	if err := json.Unmarshal(b, &s.notes); err != nil {
		s.Logger.Warn("unable to decode notes, starting with empty notes",
			zap.String("file", s.Path),
			zap.Error(err),
		)
		s.notes = make(map[string]string)
	}
	return nil
}

func (s *FileStore) save() error {
	b, err := json.MarshalIndent(s.notes, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode notes: %w", err)
	}
	if err := os.WriteFile(s.Path, b, 0o644); err != nil {
		return fmt.Errorf("unable to write notes: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	note, ok := s.notes[key]
	return note, ok
}

func (s *FileStore) Set(key, note string) error {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	s.Logger.Debug("setting note", zap.String("key", key))
	s.notes[key] = note
	return s.save()
}

func (s *FileStore) Delete(key string) error {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	if _, ok := s.notes[key]; !ok {
		return nil
	}
	s.Logger.Debug("deleting note", zap.String("key", key))
	delete(s.notes, key)
	return s.save()
}

func (s *FileStore) All() map[string]string {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	all := make(map[string]string, len(s.notes))
	for k, v := range s.notes {
		all[k] = v
	}
	return all
}

// ApplyOverrides returns a copy of ms with overridden notes replaced. The
// store is read once.
func ApplyOverrides(s Store, ms []defs.Measurement) []defs.Measurement {
	return Override(s.All(), ms)
}

// ApplyToDay applies overrides to the measurements of day and of its periods.
func ApplyToDay(s Store, day defs.Day) defs.Day {
	return OverrideDay(s.All(), day)
}

// Override returns a copy of ms with the notes found in overrides replaced.
func Override(overrides map[string]string, ms []defs.Measurement) []defs.Measurement {
	out := make([]defs.Measurement, len(ms))
	copy(out, ms)
	for i := range out {
		if note, ok := overrides[out[i].Key()]; ok {
			out[i].Note = defs.String(note)
		}
	}
	return out
}

func OverrideDay(overrides map[string]string, day defs.Day) defs.Day {
	day.Measurements = Override(overrides, day.Measurements)

	periods := make([]defs.HighGlucosePeriod, len(day.HighGlucosePeriods))
	for i, p := range day.HighGlucosePeriods {
		p.Measurements = Override(overrides, p.Measurements)
		periods[i] = p
	}
	day.HighGlucosePeriods = periods
	return day
}
