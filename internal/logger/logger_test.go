package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

func readCSV(t *testing.T, dir string) [][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "xr25_*.csv"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v (%v)", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestLoggerRecord(t *testing.T) {
	dir := t.TempDir()
	stats := func() ecu.Stats { return ecu.Stats{Synchronized: true, SyncErrors: 2, FramesPerSecond: 20, Frames: 99} }
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 100}, stats)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := ecu.Frame{
		RPM: 850, WaterTemp: 89.4, Fault1: ecu.FaultLambda,
		InFlags: ecu.InThrottle0,
		Known:   ecu.FieldRPM | ecu.FieldWaterTemp | ecu.FieldFault1 | ecu.FieldInFlags,
	}
	l.Publish(f, t0)
	l.Publish(f, t0.Add(50*time.Millisecond)) // inside the interval, dropped
	l.Publish(f, t0.Add(150*time.Millisecond))
	l.Close()

	rows := readCSV(t, dir)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	col := make(map[string]int)
	for i, name := range rows[0] {
		col[name] = i
	}
	row := rows[1]
	tests := map[string]string{
		"rpm":          "850",
		"water_c":      "89.4",
		"map_mbar":     "",
		"battery_v":    "",
		"in_flags":     "throttle idle",
		"faults":       "lambda sensor",
		"sync":         "1",
		"sync_errors":  "2",
		"frames":       "99",
		"throttle_pct": "",
	}
	for name, want := range tests {
		i, ok := col[name]
		if !ok {
			t.Fatalf("no column %q", name)
		}
		if row[i] != want {
			t.Errorf("%s = %q, want %q", name, row[i], want)
		}
	}
}

func TestLoggerDisabled(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir}, nil)
	l.Record(ecu.Frame{}, time.Now())
	if files, _ := filepath.Glob(filepath.Join(dir, "*.csv")); len(files) != 0 {
		t.Errorf("files written while disabled: %v", files)
	}

	l.SetEnabled(true)
	if !l.IsEnabled() {
		t.Fatal("not enabled")
	}
	l.Record(ecu.Frame{}, time.Now())
	l.SetEnabled(false)
	if rows := readCSV(t, dir); len(rows) != 2 {
		t.Errorf("got %d rows", len(rows))
	}
}
