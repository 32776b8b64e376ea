// Package plot draws the daily glucose chart embedded in the report.
package plot

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"glucolog/reporter/defs"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

// Default axis bounds, widened when readings fall outside them.
const (
	DefaultMin = 80.0
	DefaultMax = 180.0
	Baseline   = 100.0

	headroom = 20.0
)

const (
	marginLeft   = 50.0
	marginRight  = 50.0
	marginTop    = 20.0
	marginBottom = 50.0
)

type Options struct {
	Width     int
	Height    int
	Threshold float64
}

func DefaultOptions(threshold float64) Options {
	return Options{Width: 900, Height: 300, Threshold: threshold}
}

type canvas struct {
	dc   *gg.Context
	opts Options

	start, end time.Time
	lo, hi     float64
}

func (c *canvas) x(t time.Time) float64 {
	span := c.end.Sub(c.start).Seconds()
	plotW := float64(c.opts.Width) - marginLeft - marginRight
	return marginLeft + t.Sub(c.start).Seconds()/span*plotW
}

func (c *canvas) y(v float64) float64 {
	plotH := float64(c.opts.Height) - marginTop - marginBottom
	return marginTop + (c.hi-v)/(c.hi-c.lo)*plotH
}

// Daily renders day as a PNG image.
func Daily(day *defs.Day, opts Options) ([]byte, error) {
	if len(day.Measurements) == 0 {
		return nil, fmt.Errorf("unable to plot day %s: no measurements", day.Date)
	}

	c := &canvas{dc: gg.NewContext(opts.Width, opts.Height), opts: opts}
	c.start, c.end = Span(day.Measurements)
	c.lo, c.hi = YRange(day.Measurements)

	if err := loadFont(c.dc, 10); err != nil {
		return nil, fmt.Errorf("unable to load font: %w", err)
	}

	c.dc.SetRGB(1, 1, 1)
	c.dc.Clear()

	c.drawPeriods(day.HighGlucosePeriods)
	c.drawAxes()
	c.drawHLine(Baseline, 0, 0, 0, false)
	c.drawHLine(opts.Threshold, 1, 0, 0, true)
	c.drawReadings(day.Measurements)
	c.drawNotes(day.Measurements)
	c.drawAnnotations(day)

	var buf bytes.Buffer
	if err := c.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("unable to encode plot: %w", err)
	}
	return buf.Bytes(), nil
}

func loadFont(dc *gg.Context, size float64) error {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	return nil
}

func (c *canvas) drawPeriods(periods []defs.HighGlucosePeriod) {
	top, bottom := c.y(c.hi), c.y(c.lo)
	c.dc.SetRGBA(1, 0, 0, 0.1)
	for _, p := range periods {
		x0, x1 := c.x(p.StartTime), c.x(p.EndTime)
		c.dc.DrawRectangle(x0, top, x1-x0, bottom-top)
		c.dc.Fill()
	}
}

func (c *canvas) drawAxes() {
	left, right := marginLeft, float64(c.opts.Width)-marginRight
	bottom := c.y(c.lo)

	c.dc.SetRGB(0.6, 0.6, 0.6)
	c.dc.SetLineWidth(1)
	c.dc.DrawLine(left, bottom, right, bottom)
	c.dc.Stroke()

	c.dc.SetRGB(0.3, 0.3, 0.3)
	for t := c.start.Truncate(time.Hour).Add(time.Hour); t.Before(c.end); t = t.Add(2 * time.Hour) {
		c.dc.DrawStringAnchored(t.Format("15:04"), c.x(t), bottom+12, 0.5, 0.5)
	}
	for v := c.lo; v <= c.hi; v += 20 {
		c.dc.DrawStringAnchored(strconv.Itoa(int(v)), left-8, c.y(v), 1, 0.5)
	}
}

func (c *canvas) drawHLine(v, r, g, b float64, dashed bool) {
	if v < c.lo || v > c.hi {
		return
	}
	c.dc.SetRGB(r, g, b)
	c.dc.SetLineWidth(1)
	if dashed {
		c.dc.SetDash(6, 4)
	}
	c.dc.DrawLine(marginLeft, c.y(v), float64(c.opts.Width)-marginRight, c.y(v))
	c.dc.Stroke()
	c.dc.SetDash()
}

func (c *canvas) drawReadings(ms []defs.Measurement) {
	ms = ByTime(ms)

	c.dc.SetRGB(0, 0, 1)
	c.dc.SetLineWidth(2)

	first := true
	for _, m := range ms {
		if m.Value == nil {
			continue
		}
		if first {
			c.dc.MoveTo(c.x(m.Time), c.y(*m.Value))
			first = false
			continue
		}
		c.dc.LineTo(c.x(m.Time), c.y(*m.Value))
	}
	c.dc.Stroke()

	for _, m := range ms {
		if m.Value == nil {
			continue
		}
		c.dc.DrawCircle(c.x(m.Time), c.y(*m.Value), 4)
		c.dc.Fill()
	}
}

func (c *canvas) drawNotes(ms []defs.Measurement) {
	c.dc.SetRGB(1, 0, 0)
	y := c.y(c.lo)
	for _, m := range ms {
		if m.Note == nil || *m.Note == "" {
			continue
		}
		x := c.x(m.Time)
		c.dc.MoveTo(x, y-12)
		c.dc.LineTo(x-6, y)
		c.dc.LineTo(x+6, y)
		c.dc.ClosePath()
		c.dc.Fill()
	}
}

func (c *canvas) drawAnnotations(day *defs.Day) {
	c.dc.SetRGB(1, 0, 0)
	for _, p := range day.HighGlucosePeriods {
		peak, ok := Peak(day.Measurements, p)
		if !ok {
			continue
		}
		x, y := c.x(peak.Time), c.y(*peak.Value)
		c.dc.SetLineWidth(1)
		c.dc.DrawLine(x, y, x, y-8)
		c.dc.Stroke()
		c.dc.DrawStringAnchored(strconv.Itoa(int(p.Points)), x, y-14, 0.5, 0.5)
	}
}

// Peak returns the highest reading of ms within the bounds of p.
func Peak(ms []defs.Measurement, p defs.HighGlucosePeriod) (defs.Measurement, bool) {
	var peak defs.Measurement
	found := false
	for _, m := range ms {
		if m.Value == nil || m.Time.Before(p.StartTime) || m.Time.After(p.EndTime) {
			continue
		}
		if !found || *m.Value > *peak.Value {
			peak, found = m, true
		}
	}
	return peak, found
}

// YRange keeps the default bounds unless readings require a wider axis,
// leaving room above the highest reading for annotations.
func YRange(ms []defs.Measurement) (float64, float64) {
	lo, hi := DefaultMin, DefaultMax
	for _, m := range ms {
		if m.Value == nil {
			continue
		}
		if *m.Value < lo {
			lo = *m.Value
		}
		if *m.Value+headroom > hi && *m.Value > DefaultMax {
			hi = *m.Value + headroom
		}
	}
	return lo, hi
}

// ByTime returns a copy of ms ordered by time.
func ByTime(ms []defs.Measurement) []defs.Measurement {
	sorted := make([]defs.Measurement, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	return sorted
}

// Span returns the first and last timestamps of ms, at least an hour apart.
func Span(ms []defs.Measurement) (time.Time, time.Time) {
	start, end := ms[0].Time, ms[0].Time
	for _, m := range ms[1:] {
		if m.Time.Before(start) {
			start = m.Time
		}
		if m.Time.After(end) {
			end = m.Time
		}
	}
	if end.Sub(start) < time.Hour {
		end = start.Add(time.Hour)
	}
	return start, end
}
