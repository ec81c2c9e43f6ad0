package tui

import (
	"image"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/sample"
)

func row(rows [][]string, label string) string {
	for _, r := range rows {
		if r[0] == label {
			return r[1]
		}
	}
	return ""
}

func TestFrameRows(t *testing.T) {
	f := ecu.Frame{
		RPM:     850,
		Battery: 14,
		InFlags: ecu.InThrottle0,
		Known:   ecu.FieldRPM | ecu.FieldBattery | ecu.FieldInFlags,
	}
	rows := frameRows(f, true)
	tests := []struct {
		label, want string
	}{
		{"RPM", "850"},
		{"Battery V", "14.00"},
		{"Inputs", "throttle idle"},
		{"MAP mbar", unknown},
		{"Speed km/h", unknown},
	}
	for _, tt := range tests {
		if got := row(rows, tt.label); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.label, got, tt.want)
		}
	}

	for _, r := range frameRows(f, false) {
		if r[1] != unknown {
			t.Errorf("no frame yet: %s = %q", r[0], r[1])
		}
	}
}

func TestPlotData(t *testing.T) {
	h, err := sample.NewHistory(8)
	if err != nil {
		t.Fatal(err)
	}
	if values, alerts := plotData(h, 8); len(values) != 0 || len(alerts) != 0 {
		t.Errorf("empty history: %v %v", values, alerts)
	}

	now := time.Now()
	h.Push(1, false, now)
	h.Push(math.Inf(1), false, now)
	h.Push(2, true, now)
	h.Push(3, false, now)

	// the gap hides the sample before it
	values, alerts := plotData(h, 8)
	if len(values) != 2 || values[0] != 2 || values[1] != 3 {
		t.Errorf("values = %v", values)
	}
	if len(alerts) != 2 || !alerts[0] || alerts[1] {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestAlertPlotSegments(t *testing.T) {
	p := newAlertPlot(0, 100)
	p.Inner = image.Rect(1, 1, 6, 4) // 10x12 braille points

	if segs := p.segments(); segs != nil {
		t.Errorf("segments without data = %v", segs)
	}

	p.Values = []float64{0, 100, 50, 150}
	p.Alerts = []bool{false, true, true, false}
	segs := p.segments()
	if len(segs) != 3 {
		t.Fatalf("got %d segments", len(segs))
	}
	tests := []struct {
		from, to image.Point
		alert    bool
	}{
		{image.Pt(8, 15), image.Pt(9, 4), true},
		{image.Pt(9, 4), image.Pt(10, 10), true},
		{image.Pt(10, 10), image.Pt(11, 4), false}, // clamped to the top
	}
	for i, tt := range tests {
		if segs[i] != (segment{tt.from, tt.to, tt.alert}) {
			t.Errorf("segment %d = %+v, want %+v", i, segs[i], tt)
		}
	}

	// Only the newest samples that fit are drawn.
	p.Values = make([]float64, 25)
	p.Alerts = make([]bool, 25)
	p.Alerts[24] = true
	segs = p.segments()
	if len(segs) != 9 || !segs[8].alert || segs[0].from.X != 2 || segs[8].to.X != 11 {
		t.Errorf("overflow segments = %+v", segs)
	}

	p.Values, p.Alerts = []float64{50}, []bool{true}
	if segs := p.segments(); len(segs) != 1 || segs[0].from != segs[0].to || !segs[0].alert {
		t.Errorf("single sample = %+v", segs)
	}
}

func TestStatsText(t *testing.T) {
	s := statsText(ecu.Stats{Synchronized: true, SyncErrors: 3, FramesPerSecond: 20, Frames: 400})
	for _, want := range []string{"sync", "errors 3", "20 fps", "frames 400"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q missing %q", s, want)
		}
	}
	if s := statsText(ecu.Stats{}); !strings.HasPrefix(s, "no sync") {
		t.Errorf("unsynced = %q", s)
	}
}
