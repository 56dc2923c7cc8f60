// Package chart renders medication level reports to PNG.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/rewired-gh/doseoracle/internal/level"
	"github.com/rewired-gh/doseoracle/internal/models"
)

const (
	marginLeft   = 70.0
	marginRight  = 24.0
	marginTop    = 48.0
	marginBottom = 44.0

	gridLines = 5
)

var (
	colorBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorGrid       = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	colorAxisText   = color.RGBA{R: 0x4b, G: 0x55, B: 0x63, A: 0xff}
	colorHistory    = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}
	colorProjected  = color.RGBA{R: 0x93, G: 0xc5, B: 0xfd, A: 0xff}
	colorInjection  = color.RGBA{R: 0xdc, G: 0x26, B: 0x26, A: 0xff}
	colorNow        = color.RGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
	colorSteady     = color.RGBA{R: 0x16, G: 0xa3, B: 0x4a, A: 0xff}
)

// Render draws the report's historical curve as a solid line, the projection
// as a dashed line and each injection as a marker on the curve.
func Render(report *models.LevelReport, width, height int) ([]byte, error) {
	dc := gg.NewContext(width, height)
	dc.SetColor(colorBackground)
	dc.Clear()

	if err := loadFont(dc, 16); err != nil {
		return nil, err
	}
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(title(report), marginLeft, marginTop/2, 0, 0.5)

	if err := loadFont(dc, 12); err != nil {
		return nil, err
	}

	samples := append(append([]level.Sample{}, report.History...), report.Projected...)
	if len(samples) < 2 {
		dc.SetColor(colorAxisText)
		dc.DrawStringAnchored("No injections logged", float64(width)/2, float64(height)/2, 0.5, 0.5)
		return encode(dc)
	}

	p := newPlot(samples, float64(width), float64(height))
	if report.SteadyStateTroughMg > p.maxMg {
		p.maxMg = niceCeil(report.SteadyStateTroughMg * 1.1)
	}

	drawGrid(dc, p)

	if report.SteadyStateTroughMg > 0 {
		dc.SetColor(colorSteady)
		dc.SetLineWidth(1)
		dc.SetDash(2, 4)
		y := p.y(report.SteadyStateTroughMg)
		dc.DrawLine(p.left, y, p.right, y)
		dc.Stroke()
		dc.SetDash()
		dc.DrawStringAnchored("steady-state trough", p.right-4, y-4, 1, 0)
	}

	if !report.GeneratedAt.IsZero() && p.contains(report.GeneratedAt) {
		dc.SetColor(colorNow)
		dc.SetLineWidth(1)
		x := p.x(report.GeneratedAt)
		dc.DrawLine(x, p.top, x, p.bottom)
		dc.Stroke()
	}

	drawSeries(dc, p, report.History, colorHistory, 2.5)
	dc.SetDash(8, 6)
	drawSeries(dc, p, report.Projected, colorProjected, 2.5)
	dc.SetDash()

	dc.SetColor(colorInjection)
	for _, inj := range report.Injections {
		if !p.contains(inj.Date) {
			continue
		}
		dc.DrawCircle(p.x(inj.Date), p.y(interpolate(samples, inj.Date)), 4)
		dc.Fill()
	}

	return encode(dc)
}

func title(report *models.LevelReport) string {
	name := report.Medication.DisplayName()
	if name == "" {
		name = "Medication level"
	}
	return fmt.Sprintf("%s · %.3f mg now", name, report.CurrentLevelMg)
}

// plot maps times and levels to pixel coordinates.
type plot struct {
	left, right, top, bottom float64
	start, end               time.Time
	maxMg                    float64
}

func newPlot(samples []level.Sample, width, height float64) plot {
	p := plot{
		left:   marginLeft,
		right:  width - marginRight,
		top:    marginTop,
		bottom: height - marginBottom,
		start:  samples[0].Time,
		end:    samples[len(samples)-1].Time,
	}
	for _, s := range samples {
		p.maxMg = math.Max(p.maxMg, s.LevelMg)
	}
	p.maxMg = niceCeil(p.maxMg * 1.1)
	return p
}

func (p plot) x(t time.Time) float64 {
	span := p.end.Sub(p.start).Seconds()
	if span <= 0 {
		return p.left
	}
	return p.left + (p.right-p.left)*t.Sub(p.start).Seconds()/span
}

func (p plot) y(mg float64) float64 {
	return p.bottom - (p.bottom-p.top)*mg/p.maxMg
}

func (p plot) contains(t time.Time) bool {
	return !t.Before(p.start) && !t.After(p.end)
}

func drawGrid(dc *gg.Context, p plot) {
	dc.SetLineWidth(1)
	for i := 0; i <= gridLines; i++ {
		mg := p.maxMg * float64(i) / gridLines
		y := p.y(mg)
		dc.SetColor(colorGrid)
		dc.DrawLine(p.left, y, p.right, y)
		dc.Stroke()
		dc.SetColor(colorAxisText)
		dc.DrawStringAnchored(formatMg(mg), p.left-8, y, 1, 0.5)
	}

	span := p.end.Sub(p.start)
	layout := "Jan 2"
	if span <= 48*time.Hour {
		layout = "15:04"
	}
	const ticks = 6
	for i := 0; i <= ticks; i++ {
		t := p.start.Add(span * time.Duration(i) / ticks)
		dc.DrawStringAnchored(t.Format(layout), p.x(t), p.bottom+16, 0.5, 0.5)
	}
}

func drawSeries(dc *gg.Context, p plot, samples []level.Sample, c color.Color, width float64) {
	if len(samples) < 2 {
		return
	}
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.MoveTo(p.x(samples[0].Time), p.y(samples[0].LevelMg))
	for _, s := range samples[1:] {
		dc.LineTo(p.x(s.Time), p.y(s.LevelMg))
	}
	dc.Stroke()
}

// interpolate returns the level at t by linear interpolation between samples.
func interpolate(samples []level.Sample, t time.Time) float64 {
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		if t.After(b.Time) {
			continue
		}
		span := b.Time.Sub(a.Time).Seconds()
		if span <= 0 {
			return b.LevelMg
		}
		f := t.Sub(a.Time).Seconds() / span
		return a.LevelMg + (b.LevelMg-a.LevelMg)*f
	}
	return samples[len(samples)-1].LevelMg
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten.
func niceCeil(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func formatMg(mg float64) string {
	switch {
	case mg == 0:
		return "0"
	case mg < 0.1:
		return fmt.Sprintf("%.3f", mg)
	case mg < 10:
		return fmt.Sprintf("%.2f", mg)
	default:
		return fmt.Sprintf("%.0f", mg)
	}
}

func loadFont(dc *gg.Context, size float64) error {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return fmt.Errorf("failed to parse font: %w", err)
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	return nil
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
