package reporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	ms  []defs.Measurement
	err error
}

func (f *fakeSource) Readings(_ context.Context, _, _ int) ([]defs.Measurement, error) {
	return f.ms, f.err
}

func csvRow(ts, glucose, note string) string {
	cols := make([]string, 14)
	cols[2], cols[4], cols[13] = ts, glucose, note
	return strings.Join(cols, ",")
}

func testConfig(t *testing.T) defs.Config {
	dir := t.TempDir()
	cfg := defs.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Paths = defs.PathsConfig{
		Source:    filepath.Join(dir, "source"),
		Processed: filepath.Join(dir, "processed"),
		User:      filepath.Join(dir, "user"),
		Report:    filepath.Join(dir, "glucose_report.html"),
	}
	cfg.Logger = zap.NewNop()
	return cfg
}

func TestAnalyzeDays(t *testing.T) {
	start := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	days := map[string]*defs.Day{
		"2024-03-01": {
			Date: "2024-03-01",
			Measurements: []defs.Measurement{
				{Time: start, Value: defs.Float(150)},
				{Time: start.Add(5 * time.Minute), Value: defs.Float(160)},
				{Time: start.Add(10 * time.Minute), Value: defs.Float(130)},
			},
		},
		"2024-03-02": {
			Date: "2024-03-02",
			Measurements: []defs.Measurement{
				{Time: start.Add(24 * time.Hour), Value: defs.Float(math.NaN())},
			},
		},
		"2024-03-03": {Date: "2024-03-03"},
	}

	require.NoError(t, AnalyzeDays(context.Background(), days, 140, zap.NewNop()))

	require.Len(t, days["2024-03-01"].HighGlucosePeriods, 1)
	assert.Equal(t, 150.0, days["2024-03-01"].HighGlucosePeriods[0].Points)

	assert.NotNil(t, days["2024-03-02"].HighGlucosePeriods)
	assert.Empty(t, days["2024-03-02"].HighGlucosePeriods)
	assert.Empty(t, days["2024-03-03"].HighGlucosePeriods)
}

func TestAnalyzeDaysCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	days := map[string]*defs.Day{"2024-03-01": {Date: "2024-03-01"}}
	err := AnalyzeDays(ctx, days, 140, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.Source, 0o755))

	export := strings.Join([]string{
		csvRow("Znacznik czasu w urządzeniu", "Historyczne stężenie glukozy mg/dL", "Uwagi"),
		csvRow("01-03-2024 08:00", "150", "pizza"),
		csvRow("01-03-2024 08:05", "160", ""),
		csvRow("01-03-2024 08:10", "130", ""),
		csvRow("02-03-2024 09:00", "110", ""),
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Source, "export.csv"), []byte(export), 0o644))

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	r.Source = &fakeSource{ms: []defs.Measurement{
		{Time: time.Date(2024, time.March, 3, 7, 0, 0, 0, time.UTC), Value: defs.Float(200)},
		{Time: time.Date(2024, time.March, 3, 7, 5, 0, 0, time.UTC), Value: defs.Float(120)},
	}}

	require.NoError(t, r.Process(context.Background()))

	for _, date := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		assert.FileExists(t, filepath.Join(cfg.Paths.Processed, date+".json"))
	}

	day, err := r.Store.ReadDay(context.Background(), "2024-03-01")
	require.NoError(t, err)
	require.Len(t, day.HighGlucosePeriods, 1)
	assert.Equal(t, 150.0, day.HighGlucosePeriods[0].Points)

	day, err = r.Store.ReadDay(context.Background(), "2024-03-03")
	require.NoError(t, err)
	require.Len(t, day.HighGlucosePeriods, 1)
	assert.Equal(t, 300.0, day.HighGlucosePeriods[0].Points)

	b, err := os.ReadFile(cfg.Paths.Report)
	require.NoError(t, err)
	assert.Contains(t, string(b), "2024-03-01")
	assert.Contains(t, string(b), "pizza")
}

func TestProcessDexcomFailure(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	r.Source = &fakeSource{err: errors.New("share unavailable")}

	require.NoError(t, r.Process(context.Background()))
	assert.FileExists(t, cfg.Paths.Report)
}

func TestNoteChangeRendersReport(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)

	start := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, r.Store.WriteDay(context.Background(), &defs.Day{
		Date:         "2024-03-01",
		Measurements: []defs.Measurement{{Time: start, Value: defs.Float(120), Note: defs.String("before")}},
	}))
	require.NoError(t, r.Notes.Set("2024-03-01T08:00:00", "after"))

	hs := r.Server()
	require.NotNil(t, hs.OnNoteChange)
	require.NoError(t, hs.OnNoteChange(context.Background()))

	b, err := os.ReadFile(cfg.Paths.Report)
	require.NoError(t, err)
	assert.Contains(t, string(b), "after")
	assert.NotContains(t, string(b), "before")
}

func TestUnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = "redis"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestProcessDuplicateExports(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.Source, 0o755))

	export := strings.Join([]string{
		csvRow("Znacznik czasu w urządzeniu", "", ""),
		csvRow("01-03-2024 08:00", "150", "pizza"),
		csvRow("01-03-2024 08:05", "160", ""),
		csvRow("01-03-2024 08:10", "130", ""),
	}, "\n")
	for _, name := range []string{"march.csv", "march-again.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Source, name), []byte(export), 0o644))
	}

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, r.Process(context.Background()))

	day, err := r.Store.ReadDay(context.Background(), "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, day.Measurements, 3)
	require.Len(t, day.HighGlucosePeriods, 1)
	assert.Len(t, day.HighGlucosePeriods[0].Measurements, 2)
	assert.Equal(t, 150.0, day.HighGlucosePeriods[0].Points)

	b, err := os.ReadFile(cfg.Paths.Report)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "<textarea"), "one editable note")
}

func TestProcessKeepsStoredReadings(t *testing.T) {
	cfg := testConfig(t)
	at := func(hour, min int) time.Time {
		return time.Date(2024, time.March, 3, hour, min, 0, 0, time.UTC)
	}

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)

	r.Source = &fakeSource{ms: []defs.Measurement{
		{Time: at(8, 0), Value: defs.Float(200)},
		{Time: at(8, 5), Value: defs.Float(120)},
	}}
	require.NoError(t, r.Process(context.Background()))

	r.Source = &fakeSource{ms: []defs.Measurement{
		{Time: at(8, 5), Value: defs.Float(120)},
		{Time: at(22, 0), Value: defs.Float(110)},
		{Time: at(22, 5), Value: defs.Float(115)},
	}}
	require.NoError(t, r.Process(context.Background()))

	day, err := r.Store.ReadDay(context.Background(), "2024-03-03")
	require.NoError(t, err)
	require.Len(t, day.Measurements, 4)
	assert.Equal(t, at(8, 0), day.Measurements[0].Time)
	assert.Equal(t, at(22, 5), day.Measurements[3].Time)
	require.Len(t, day.HighGlucosePeriods, 1)
	assert.Equal(t, 300.0, day.HighGlucosePeriods[0].Points)
}

func TestRenderConcurrent(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)

	start := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		d := start.AddDate(0, 0, i)
		require.NoError(t, r.Store.WriteDay(context.Background(), &defs.Day{
			Date:         d.Format(defs.DateLayout),
			Measurements: []defs.Measurement{{Time: d, Value: defs.Float(120)}},
		}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, r.Notes.Set(fmt.Sprintf("2024-03-0%dT08:00:00", n%5+1), "edited"))
			assert.NoError(t, r.Render(context.Background()))
		}(i)
	}
	wg.Wait()

	b, err := os.ReadFile(cfg.Paths.Report)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "</html>"))
}

type memoryFiles struct {
	files   map[string][]byte
	deleted []string
	next    int
}

func (m *memoryFiles) WriteFile(_ context.Context, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.next++
	fid := fmt.Sprintf("fid-%d", m.next)
	m.files[fid] = b
	return fid, nil
}

func (m *memoryFiles) ReadFile(_ context.Context, fid string) (io.Reader, error) {
	b, ok := m.files[fid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return bytes.NewReader(b), nil
}

func (m *memoryFiles) DeleteFile(_ context.Context, fid string) error {
	delete(m.files, fid)
	m.deleted = append(m.deleted, fid)
	return nil
}

func TestRenderReplacesUploadedReport(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	files := &memoryFiles{files: map[string][]byte{}}
	r.Files = files

	_, err = r.Report(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, r.Render(context.Background()))
	require.NoError(t, r.Render(context.Background()))
	require.NoError(t, r.Render(context.Background()))

	assert.Equal(t, []string{"fid-1", "fid-2"}, files.deleted)
	assert.Len(t, files.files, 1)

	rd, err := r.Report(context.Background())
	require.NoError(t, err)
	b, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Raport analizy glukozy")

	assert.NotNil(t, r.Server().ReportSource)
}
