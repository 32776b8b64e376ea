// Package report renders every stored day into a single HTML document.
package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/notes"
	"glucolog/reporter/pkg/plot"
	"glucolog/reporter/pkg/stats"
	"glucolog/reporter/pkg/store"

	"go.uber.org/zap"
)

const clockFormat = "15:04"

var severityClass = map[stats.Severity]string{
	stats.Low:    "bg-success bg-opacity-25",
	stats.Medium: "bg-warning bg-opacity-25",
	stats.High:   "bg-danger bg-opacity-25",
}

var tmpl = template.Must(template.New("report").Parse(page))

type Generator struct {
	Glucose defs.GlucoseConfig
	Notes   notes.Store
	Logger  *zap.Logger
}

func New(cfg defs.GlucoseConfig, ns notes.Store, logger *zap.Logger) *Generator {
	return &Generator{Glucose: cfg, Notes: ns, Logger: logger}
}

type noteView struct {
	Time string
	Key  string
	Text string
}

type periodView struct {
	Start  string
	Points int
}

type dayView struct {
	Date     string
	Plot     template.URL
	Notes    []noteView
	Periods  []periodView
	Count    int
	Total    int
	Severity string
	Average  float64
	InRange  float64
}

// Render writes the report for days, newest first. Days without any
// measurement are left out.
func (g *Generator) Render(w io.Writer, days []defs.Day) error {
	var overrides map[string]string
	if g.Notes != nil {
		overrides = g.Notes.All()
	}

	sorted := make([]defs.Day, 0, len(days))
	for _, day := range days {
		if len(day.Measurements) == 0 {
			continue
		}
		sorted = append(sorted, notes.OverrideDay(overrides, day))
	}
	store.SortDays(sorted)

	views := make([]dayView, 0, len(sorted))
	for i := range sorted {
		views = append(views, g.view(&sorted[i]))
	}

	if err := tmpl.Execute(w, struct{ Days []dayView }{views}); err != nil {
		return fmt.Errorf("unable to render report: %w", err)
	}
	return nil
}

func (g *Generator) view(day *defs.Day) dayView {
	summary := stats.Summarize(day, g.Glucose)
	v := dayView{
		Date:     day.Date,
		Count:    summary.Periods,
		Total:    int(summary.TotalPoints),
		Severity: severityClass[summary.Severity],
		Average:  summary.Average,
		InRange:  summary.InRange * 100,
	}

	if day.HasValues() {
		b, err := plot.Daily(day, plot.DefaultOptions(g.Glucose.Threshold))
		if err != nil {
			g.Logger.Warn("unable to plot day", zap.String("date", day.Date), zap.Error(err))
		} else {
			v.Plot = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(b))
		}
	}

	for _, m := range day.Measurements {
		if m.Note == nil || *m.Note == "" {
			continue
		}
		v.Notes = append(v.Notes, noteView{
			Time: m.Time.Format(clockFormat),
			Key:  m.Key(),
			Text: *m.Note,
		})
	}

	for _, p := range day.HighGlucosePeriods {
		v.Periods = append(v.Periods, periodView{
			Start:  p.StartTime.Format(clockFormat),
			Points: int(p.Points),
		})
	}
	return v
}

// WriteFile renders the report into a temporary file next to path and
// renames it over path, so readers never see a partial report.
func (g *Generator) WriteFile(path string, days []defs.Day) error {
	var buf bytes.Buffer
	if err := g.Render(&buf, days); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("unable to create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("unable to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("unable to replace report: %w", err)
	}

	g.Logger.Info("generated report", zap.String("file", path), zap.Int("days", len(days)))
	return nil
}
