// Package store declares the persistence contracts shared by the file and
// mongo backends.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"glucolog/reporter/defs"
)

var ErrNotFound = errors.New("not found")

type DayStore interface {
	WriteDay(ctx context.Context, day *defs.Day) error
	ReadDay(ctx context.Context, date string) (*defs.Day, error)
	ReadDays(ctx context.Context) ([]defs.Day, error)
}

type GlucoseStore interface {
	ReadMeasurements(ctx context.Context, start, end time.Time) ([]defs.Measurement, error)
}

type FileStore interface {
	WriteFile(ctx context.Context, name string, r io.Reader) (string, error)
	ReadFile(ctx context.Context, fid string) (io.Reader, error)
	DeleteFile(ctx context.Context, fid string) error
}

type Store interface {
	DayStore
	GlucoseStore
}

// Between keeps the measurements of days whose time falls in [start, end],
// ordered by time.
func Between(days []defs.Day, start, end time.Time) []defs.Measurement {
	ms := make([]defs.Measurement, 0)
	for _, day := range days {
		for _, m := range day.Measurements {
			if m.Time.Before(start) || m.Time.After(end) {
				continue
			}
			ms = append(ms, m)
		}
	}
	sortByTime(ms)
	return ms
}
