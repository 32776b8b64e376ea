package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/dexcom"
	"glucolog/reporter/pkg/fsstore"
	rhttp "glucolog/reporter/pkg/http"
	"glucolog/reporter/pkg/ingest"
	"glucolog/reporter/pkg/mg"
	"glucolog/reporter/pkg/notes"
	"glucolog/reporter/pkg/periods"
	"glucolog/reporter/pkg/report"
	"glucolog/reporter/pkg/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Reporter struct {
	Config   defs.Config
	Store    store.Store
	Files    store.FileStore
	Notes    notes.Store
	Source   dexcom.Source
	Location *time.Location
	Logger   *zap.Logger

	mongo *mg.MongoStore

	// Guards rendering and the id of the last uploaded report.
	renderMu sync.Mutex
	reportID string
}

// New wires the stores selected by config.Storage.
func New(ctx context.Context, config defs.Config) (*Reporter, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := config.Location()
	if err != nil {
		return nil, fmt.Errorf("unable to load timezone: %w", err)
	}

	r := &Reporter{
		Config:   config,
		Location: loc,
		Logger:   logger,
	}

	switch config.Storage {
	case defs.MongoStorage:
		ctx, cancel := context.WithTimeout(ctx, defs.TimeoutInterval)
		defer cancel()

		logger.Debug("connecting to mongo", zap.String("uri", config.Mongo.URI))
		ms, err := mg.New(ctx, config.Mongo, logger)
		if err != nil {
			return nil, err
		}
		ms.Location = loc
		r.mongo, r.Store, r.Files, r.Notes = ms, ms, ms, mg.NewNoteStore(ms)
	case defs.FileStorage, "":
		fs, err := fsstore.New(config.Paths.Processed, loc, logger)
		if err != nil {
			return nil, err
		}
		ns, err := notes.NewFileStore(config.Paths.User, logger)
		if err != nil {
			return nil, err
		}
		r.Store, r.Notes = fs, ns
	default:
		return nil, fmt.Errorf("unknown storage %q", config.Storage)
	}

	if config.Dexcom.Account != "" {
		r.Source = dexcom.New(config.Dexcom.Account, config.Dexcom.Password, logger)
	}

	return r, nil
}

func (r *Reporter) Close(ctx context.Context) error {
	if r.mongo == nil {
		return nil
	}
	return r.mongo.Close(ctx)
}

// Ingest collects days from the CSV exports in the source directory and,
// when configured, the last day of Dexcom Share readings.
func (r *Reporter) Ingest(ctx context.Context) (map[string]*defs.Day, error) {
	if err := os.MkdirAll(r.Config.Paths.Source, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create source directory: %w", err)
	}

	days, err := ingest.New(r.Location, r.Logger).ParseDir(r.Config.Paths.Source)
	if err != nil {
		return nil, err
	}

	if r.Source != nil {
		ms, err := r.Source.Readings(ctx, dexcom.MinuteLimit, dexcom.CountLimit)
		if err != nil {
			r.Logger.Warn("unable to fetch dexcom readings", zap.Error(err))
		} else {
			ingest.Merge(days, dexcom.Days(ms, r.Location))
		}
	}

	r.Logger.Info("ingested days", zap.Int("days", len(days)))
	return days, nil
}

// AnalyzeDays finds the high glucose periods of every day concurrently. A day
// the analyzer rejects is logged and kept without periods.
func AnalyzeDays(ctx context.Context, days map[string]*defs.Day, threshold float64, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, day := range days {
		day := day
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			ps, err := periods.Analyze(day.Measurements, threshold)
			if err != nil {
				logger.Warn("unable to analyze day",
					zap.String("date", day.Date),
					zap.Error(err),
				)
				day.HighGlucosePeriods = []defs.HighGlucosePeriod{}
				return nil
			}
			day.HighGlucosePeriods = ps
			return nil
		})
	}

	return g.Wait()
}

// Process runs the whole batch: ingest, merge with stored days, analyze,
// persist and render.
func (r *Reporter) Process(ctx context.Context) error {
	days, err := r.Ingest(ctx)
	if err != nil {
		return err
	}

	if err := r.mergeStored(ctx, days); err != nil {
		return err
	}

	if err := AnalyzeDays(ctx, days, r.Config.Glucose.Threshold, r.Logger); err != nil {
		return fmt.Errorf("unable to analyze days: %w", err)
	}

	for _, date := range ingest.Dates(days) {
		if err := r.Store.WriteDay(ctx, days[date]); err != nil {
			return fmt.Errorf("unable to store day: %w", err)
		}
	}

	return r.Render(ctx)
}

// mergeStored folds each ingested day into its stored version, so a partial
// day never replaces readings persisted by an earlier run.
func (r *Reporter) mergeStored(ctx context.Context, days map[string]*defs.Day) error {
	for date, day := range days {
		stored, err := r.Store.ReadDay(ctx, date)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("unable to merge day: %w", err)
		}

		ingest.MergeDay(stored, day)
		stored.HighGlucosePeriods = []defs.HighGlucosePeriod{}
		days[date] = stored

		r.Logger.Debug("merged with stored day",
			zap.String("date", date),
			zap.Int("measurements", len(stored.Measurements)),
		)
	}
	return nil
}

// Render rebuilds the report from every stored day. Calls are serialized.
func (r *Reporter) Render(ctx context.Context) error {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	days, err := r.Store.ReadDays(ctx)
	if err != nil {
		return err
	}

	gen := report.New(r.Config.Glucose, r.Notes, r.Logger)
	if err := gen.WriteFile(r.Config.Paths.Report, days); err != nil {
		return err
	}

	if r.Files == nil {
		return nil
	}
	return r.upload(ctx)
}

// upload stores the report and drops the previously uploaded one.
func (r *Reporter) upload(ctx context.Context) error {
	f, err := os.Open(r.Config.Paths.Report)
	if err != nil {
		return fmt.Errorf("unable to open report: %w", err)
	}
	defer f.Close()

	fid, err := r.Files.WriteFile(ctx, filepath.Base(r.Config.Paths.Report), f)
	if err != nil {
		return err
	}
	r.Logger.Info("uploaded report", zap.String("fid", fid))

	previous := r.reportID
	r.reportID = fid
	if previous == "" {
		return nil
	}
	if err := r.Files.DeleteFile(ctx, previous); err != nil {
		r.Logger.Warn("unable to delete previous report", zap.String("fid", previous), zap.Error(err))
	}
	return nil
}

// Report reads the last uploaded report back from the file store.
func (r *Reporter) Report(ctx context.Context) (io.Reader, error) {
	r.renderMu.Lock()
	fid := r.reportID
	r.renderMu.Unlock()

	if r.Files == nil || fid == "" {
		return nil, store.ErrNotFound
	}
	return r.Files.ReadFile(ctx, fid)
}

// Server exposes the stored days and note overrides; saving a note renders
// the report again.
func (r *Reporter) Server() *rhttp.HttpServer {
	hs := rhttp.New(r.Store, r.Notes, r.Config.Paths.Report, r.Logger)
	hs.OnNoteChange = r.Render
	if r.Files != nil {
		hs.ReportSource = r.Report
	}
	return hs
}
