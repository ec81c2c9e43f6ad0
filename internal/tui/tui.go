// Package tui renders the XR25 diagnostic page in a terminal with termui.
package tui

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/sample"
)

// Deps are the pipeline parts the terminal page reads from.
type Deps struct {
	Sync     *ecu.Synchronizer
	Latest   *sample.Latest
	Channels sample.Channels
	Decoder  string
	PageHz   int
	HeaderHz int
}

const unknown = "?"

type page struct {
	deps Deps

	header *widgets.Paragraph
	table  *widgets.Table
	faults *widgets.Paragraph
	plots  []*alertPlot
	grid   *ui.Grid
}

// Run takes over the terminal until ctx is cancelled or the user quits
// with q or Ctrl-C. The frame page and plots refresh at PageHz, the stats
// header at HeaderHz.
func Run(ctx context.Context, deps Deps) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("tui: init terminal: %w", err)
	}
	defer ui.Close()

	if deps.PageHz <= 0 {
		deps.PageHz = 16
	}
	if deps.HeaderHz <= 0 {
		deps.HeaderHz = 1
	}

	p := newPage(deps)
	w, h := ui.TerminalDimensions()
	p.grid.SetRect(0, 0, w, h)
	p.updateHeader()
	p.updatePage()
	ui.Render(p.grid)

	events := ui.PollEvents()
	pageTicker := time.NewTicker(time.Second / time.Duration(deps.PageHz))
	headerTicker := time.NewTicker(time.Second / time.Duration(deps.HeaderHz))
	defer pageTicker.Stop()
	defer headerTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				p.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(p.grid)
			}
		case <-pageTicker.C:
			p.updatePage()
			ui.Render(p.grid)
		case <-headerTicker.C:
			p.updateHeader()
			ui.Render(p.header)
		}
	}
}

func newPage(deps Deps) *page {
	p := &page{deps: deps}

	p.header = widgets.NewParagraph()
	p.header.Title = "XR25 " + deps.Decoder
	p.header.BorderStyle.Fg = ui.ColorWhite

	p.table = widgets.NewTable()
	p.table.Title = "Frame"
	p.table.RowSeparator = false
	p.table.TextStyle = ui.NewStyle(ui.ColorWhite)

	p.faults = widgets.NewParagraph()
	p.faults.Title = "Faults"
	p.faults.BorderStyle.Fg = ui.ColorWhite

	plotCol := make([]interface{}, 0, len(deps.Channels))
	for _, c := range deps.Channels {
		pl := newAlertPlot(c.Min, c.Max)
		pl.Title = fmt.Sprintf("%s (%s)", c.Name, c.Unit)
		p.plots = append(p.plots, pl)
		plotCol = append(plotCol, ui.NewRow(1.0/float64(len(deps.Channels)), pl))
	}

	p.grid = ui.NewGrid()
	p.grid.Set(
		ui.NewRow(1.0/8, ui.NewCol(1.0, p.header)),
		ui.NewRow(7.0/8,
			ui.NewCol(2.0/5,
				ui.NewRow(3.0/4, p.table),
				ui.NewRow(1.0/4, p.faults),
			),
			ui.NewCol(3.0/5, plotCol...),
		),
	)
	return p
}

func (p *page) updateHeader() {
	p.header.Text = statsText(p.deps.Sync.Stats())
	if p.deps.Sync.IsSynchronized() {
		p.header.TextStyle = ui.NewStyle(ui.ColorGreen)
	} else {
		p.header.TextStyle = ui.NewStyle(ui.ColorRed)
	}
}

func (p *page) updatePage() {
	f, _, ok := p.deps.Latest.Get()
	p.table.Rows = frameRows(f, ok)
	p.faults.Text = strings.Join(f.FaultNames(), "\n")

	for i, c := range p.deps.Channels {
		p.plots[i].Values, p.plots[i].Alerts = plotData(c.History(), c.History().Cap())
	}
}

func statsText(st ecu.Stats) string {
	sync := "no sync"
	if st.Synchronized {
		sync = "sync"
	}
	return fmt.Sprintf("%s | errors %d | %d fps | frames %d | rejected %d",
		sync, st.SyncErrors, st.FramesPerSecond, st.Frames, st.Rejected)
}

// plotData returns the newest run of valid samples oldest first, with
// their alert flags.
func plotData(h *sample.History, n int) ([]float64, []bool) {
	snap := h.Snapshot(n)
	values := make([]float64, 0, len(snap))
	alerts := make([]bool, 0, len(snap))
	for i := len(snap) - 1; i >= 0; i-- {
		values = append(values, snap[i].Value)
		alerts = append(alerts, snap[i].Alert)
	}
	return values, alerts
}

// alertPlot is a braille line plot of one channel. Each segment takes the
// alert colour when the sample it ends on is in the alert region, so
// alert spans stay visible as the history scrolls.
type alertPlot struct {
	ui.Block
	Min, Max   float64
	Values     []float64
	Alerts     []bool
	LineColor  ui.Color
	AlertColor ui.Color
}

type segment struct {
	from, to image.Point
	alert    bool
}

func newAlertPlot(lo, hi float64) *alertPlot {
	p := &alertPlot{
		Block:      *ui.NewBlock(),
		Min:        lo,
		Max:        hi,
		LineColor:  ui.ColorGreen,
		AlertColor: ui.ColorRed,
	}
	p.BorderStyle.Fg = ui.ColorWhite
	return p
}

func (p *alertPlot) Draw(buf *ui.Buffer) {
	p.Block.Draw(buf)

	c := ui.NewCanvas()
	c.Rectangle = p.Inner
	for _, seg := range p.segments() {
		color := p.LineColor
		if seg.alert {
			color = p.AlertColor
		}
		c.SetLine(seg.from, seg.to, color)
	}
	c.Draw(buf)
}

// segments maps the newest samples that fit the inner area to braille
// points, two per cell across and four per cell down, newest at the
// right edge.
func (p *alertPlot) segments() []segment {
	r := p.Inner
	width, height := 2*r.Dx(), 4*r.Dy()
	if width <= 0 || height <= 0 || len(p.Values) == 0 {
		return nil
	}

	values, alerts := p.Values, p.Alerts
	if len(values) > width {
		values = values[len(values)-width:]
		alerts = alerts[len(alerts)-width:]
	}
	x0 := 2*r.Min.X + width - len(values)
	bottom := 4*r.Max.Y - 1

	point := func(i int) image.Point {
		frac := 0.0
		if p.Max > p.Min {
			frac = (values[i] - p.Min) / (p.Max - p.Min)
		}
		if frac < 0 {
			frac = 0
		} else if frac > 1 {
			frac = 1
		}
		return image.Pt(x0+i, bottom-int(frac*float64(height-1)))
	}

	if len(values) == 1 {
		pt := point(0)
		return []segment{{pt, pt, alerts[0]}}
	}
	out := make([]segment, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, segment{point(i - 1), point(i), alerts[i]})
	}
	return out
}

// frameRows lays out the decoded fields as label/value pairs. Fields the
// decoder did not produce are shown as "?".
func frameRows(f ecu.Frame, ok bool) [][]string {
	if !ok {
		f = ecu.Frame{}
	}
	val := func(fld ecu.Field, s string) string {
		if !f.Has(fld) {
			return unknown
		}
		return s
	}
	itoa := strconv.Itoa
	ftoa := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }

	return [][]string{
		{"Program", val(ecu.FieldProgramVersion, itoa(int(f.ProgramVersion)))},
		{"Calibration", val(ecu.FieldCalibVersion, itoa(int(f.CalibVersion)))},
		{"RPM", val(ecu.FieldRPM, itoa(f.RPM))},
		{"MAP mbar", val(ecu.FieldMAP, itoa(f.MAP))},
		{"Throttle %", val(ecu.FieldThrottle, itoa(f.Throttle))},
		{"Injection µs", val(ecu.FieldInjection, itoa(f.InjectionUS))},
		{"Advance °", val(ecu.FieldAdvance, itoa(f.Advance))},
		{"Pinging", val(ecu.FieldEnginePinging, itoa(int(f.EnginePinging)))},
		{"Pinging delay", val(ecu.FieldPingingDelay, itoa(int(f.PingingDelay)))},
		{"Water °C", val(ecu.FieldWaterTemp, ftoa(f.WaterTemp, 1))},
		{"Air °C", val(ecu.FieldAirTemp, ftoa(f.AirTemp, 1))},
		{"Battery V", val(ecu.FieldBattery, ftoa(f.Battery, 2))},
		{"Lambda mV", val(ecu.FieldLambda, ftoa(f.Lambda, 0))},
		{"Idle reg %", val(ecu.FieldIdleRegulation, itoa(f.IdleRegulation))},
		{"Idle period", val(ecu.FieldIdlePeriod, itoa(f.IdlePeriod))},
		{"Atmos mbar", val(ecu.FieldAtmosPressure, itoa(f.AtmosPressure))},
		{"AFR corr", val(ecu.FieldAFRCorrection, itoa(int(f.AFRCorrection)))},
		{"Speed km/h", val(ecu.FieldSpeed, itoa(f.Speed))},
		{"Inputs", val(ecu.FieldInFlags, strings.Join(f.InFlags.Names(), ", "))},
		{"Outputs", val(ecu.FieldOutFlags, strings.Join(f.OutFlags.Names(), ", "))},
	}
}
