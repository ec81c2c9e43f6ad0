package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/capture"
	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/server"
)

// writeCapture records n Fenix3 frames reading 14 V on the battery.
func writeCapture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.gob")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := capture.NewRecorder(f)
	raw := ecu.NewRawFrame(35)
	raw[23] = 192
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		if err := rec.Record(raw, t0.Add(time.Duration(i)*50*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDump(t *testing.T) {
	path := writeCapture(t, 3)
	var out bytes.Buffer
	if err := dump(&out, &options{decoder: "Fenix3"}, path); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "12:00:00.000 [ 35] ok") || !strings.Contains(lines[0], "batt=14.00") {
		t.Errorf("line = %q", lines[0])
	}

	err := dump(&out, &options{decoder: "Nope"}, path)
	if !errors.Is(err, ecu.ErrDecoderNotFound) {
		t.Errorf("unknown decoder err = %v", err)
	}
	if err := dump(&out, &options{decoder: "Fenix3"}, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestDecodersCommand(t *testing.T) {
	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decoders"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "Fenix1\nFenix3\nFenix52B\n" {
		t.Errorf("decoders = %q", got)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg     server.ECUConfig
		name    string
		wantErr bool
	}{
		{server.ECUConfig{Type: "demo"}, "Demo (Simulated)", false},
		{server.ECUConfig{Type: "serial", PortPath: "/dev/null"}, "XR25 Serial", false},
		{server.ECUConfig{Type: "replay", ReplayPath: "x.gob"}, "Replay", false},
		{server.ECUConfig{Type: "replay"}, "", true},
		{server.ECUConfig{Type: "canbus"}, "", true},
	}
	for _, tt := range tests {
		p, err := newProvider(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("%+v: err = %v", tt.cfg, err)
			continue
		}
		if err == nil && p.Name() != tt.name {
			t.Errorf("%+v: name = %q", tt.cfg, p.Name())
		}
	}
}

func TestNewPipelineErrors(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.ECU.Decoder = "Nope"
	if _, err := newPipeline(cfg); !errors.Is(err, ecu.ErrDecoderNotFound) {
		t.Errorf("err = %v", err)
	}

	cfg = server.DefaultConfig()
	cfg.Display.HistorySize = 100
	if _, err := newPipeline(cfg); err == nil {
		t.Error("history size 100 accepted")
	}
}

func TestPipelineReplay(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.ECU.Type = "replay"
	cfg.ECU.ReplayPath = writeCapture(t, 4)
	cfg.Capture.Enabled = true
	cfg.Capture.Path = t.TempDir()

	p, err := newPipeline(cfg)
	if err != nil {
		t.Fatal(err)
	}

	front := func(ctx context.Context) error {
		deadline := time.After(5 * time.Second)
		for p.syncer.FrameCount() < 4 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				return errors.New("frames never arrived")
			case <-time.After(10 * time.Millisecond):
			}
		}
		return nil
	}
	if err := p.run(context.Background(), front); err != nil {
		t.Fatal(err)
	}

	if f, _, ok := p.latest.Get(); !ok || f.Battery != 14 {
		t.Errorf("latest = %+v, %v", f, ok)
	}
	if p.recorder.Frames() != 4 {
		t.Errorf("re-recorded %d frames", p.recorder.Frames())
	}
	if s := p.channels.Lookup("Battery").History().At(0); s.Value != 14 {
		t.Errorf("battery sample = %+v", s)
	}
}
