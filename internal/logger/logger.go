package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

// Logger records timestamped XR25 frames to CSV files with automatic rotation.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	stats    func() ecu.Stats

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows (~2.7 hrs at 10 Hz)
)

var csvHeader = []string{
	"timestamp", "prog_vrsn", "calib_vrsn",
	"rpm", "map_mbar", "throttle_pct", "injection_us", "advance",
	"water_c", "air_c", "battery_v", "lambda_mv",
	"idle_reg_pct", "idle_period", "atmos_mbar", "afr_corr", "speed_kph",
	"pinging", "pinging_delay",
	"in_flags", "out_flags", "faults",
	"sync", "sync_errors", "fps", "frames",
}

// New creates a new Logger. stats may be nil.
func New(cfg Config, stats func() ecu.Stats) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/xr25dash"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 100 * time.Millisecond // Default 10 Hz
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		stats:    stats,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Publish implements ecu.Sink.
func (l *Logger) Publish(f ecu.Frame, at time.Time) { l.Record(f, at) }

// Record writes a frame if the minimum interval has elapsed since the
// previous row.
func (l *Logger) Record(f ecu.Frame, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	if at.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = at

	// Open/rotate file if needed
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(at); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	var st ecu.Stats
	if l.stats != nil {
		st = l.stats()
	}
	if err := l.writer.Write(buildRow(at, f, st)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("xr25_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	// Write header
	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// buildRow leaves fields the decoder did not produce empty.
func buildRow(ts time.Time, f ecu.Frame, st ecu.Stats) []string {
	row := make([]string, 0, len(csvHeader))
	add := func(fld ecu.Field, v string) {
		if fld != 0 && !f.Has(fld) {
			v = ""
		}
		row = append(row, v)
	}
	itoa := strconv.Itoa
	ftoa := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }

	add(0, ts.Format(time.RFC3339Nano))
	add(ecu.FieldProgramVersion, fmt.Sprintf("%02x", f.ProgramVersion))
	add(ecu.FieldCalibVersion, fmt.Sprintf("%02x", f.CalibVersion))
	add(ecu.FieldRPM, itoa(f.RPM))
	add(ecu.FieldMAP, itoa(f.MAP))
	add(ecu.FieldThrottle, itoa(f.Throttle))
	add(ecu.FieldInjection, itoa(f.InjectionUS))
	add(ecu.FieldAdvance, itoa(f.Advance))
	add(ecu.FieldWaterTemp, ftoa(f.WaterTemp, 1))
	add(ecu.FieldAirTemp, ftoa(f.AirTemp, 1))
	add(ecu.FieldBattery, ftoa(f.Battery, 2))
	add(ecu.FieldLambda, ftoa(f.Lambda, 0))
	add(ecu.FieldIdleRegulation, itoa(f.IdleRegulation))
	add(ecu.FieldIdlePeriod, itoa(f.IdlePeriod))
	add(ecu.FieldAtmosPressure, itoa(f.AtmosPressure))
	add(ecu.FieldAFRCorrection, itoa(int(f.AFRCorrection)))
	add(ecu.FieldSpeed, itoa(f.Speed))
	add(ecu.FieldEnginePinging, itoa(int(f.EnginePinging)))
	add(ecu.FieldPingingDelay, itoa(int(f.PingingDelay)))
	add(ecu.FieldInFlags, strings.Join(f.InFlags.Names(), "|"))
	add(ecu.FieldOutFlags, strings.Join(f.OutFlags.Names(), "|"))
	add(0, strings.Join(f.FaultNames(), "|"))
	add(0, boolStr(st.Synchronized))
	add(0, strconv.FormatInt(st.SyncErrors, 10))
	add(0, strconv.FormatInt(st.FramesPerSecond, 10))
	add(0, strconv.FormatInt(st.Frames, 10))
	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
