package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/xr25-dash/internal/capture"
	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/logger"
	"github.com/shaunagostinho/xr25-dash/internal/sample"
	"github.com/shaunagostinho/xr25-dash/internal/server"
	"github.com/shaunagostinho/xr25-dash/internal/tui"
	"github.com/shaunagostinho/xr25-dash/web"
)

// pipeline is one byte source wired through the synchronizer into the
// sinks every front end reads from.
type pipeline struct {
	cfg      *server.Config
	settings server.Settings

	registry *ecu.Registry
	provider ecu.Provider
	syncer   *ecu.Synchronizer
	latest   *sample.Latest
	channels sample.Channels
	logger   *logger.Logger
	recorder *capture.Recorder // nil unless capture is enabled
}

func newPipeline(cfg *server.Config) (*pipeline, error) {
	s := cfg.Snapshot()
	p := &pipeline{
		cfg:      cfg,
		settings: s,
		registry: ecu.NewRegistry(),
		latest:   &sample.Latest{},
	}

	dec, err := p.registry.Lookup(s.ECU.Decoder)
	if err != nil {
		return nil, err
	}
	if p.provider, err = newProvider(s.ECU); err != nil {
		return nil, err
	}
	if p.channels, err = sample.DefaultChannels(s.Display.Thresholds, s.Display.HistorySize); err != nil {
		return nil, err
	}

	p.logger = logger.New(logger.Config{
		Enabled:    s.Logging.Enabled,
		Path:       s.Logging.Path,
		IntervalMs: s.Logging.Interval,
	}, func() ecu.Stats { return p.syncer.Stats() })

	var hook ecu.FrameHook
	if s.Capture.Enabled {
		if p.recorder, err = capture.Create(s.Capture.Path, time.Now()); err != nil {
			return nil, err
		}
		hook = p.recorder.Hook()
	}

	p.syncer = ecu.NewSynchronizer(ecu.SyncConfig{
		Decoder: dec,
		Sinks:   []ecu.Sink{p.latest, p.channels, p.logger},
		OnFrame: hook,
	})
	log.Printf("[main] %s via %s, decoder %s", s.ECU.Type, p.provider.Name(), dec.Name())
	return p, nil
}

// newProvider selects the byte source named by the ECU config.
func newProvider(c server.ECUConfig) (ecu.Provider, error) {
	switch c.Type {
	case "serial":
		return ecu.NewSerial(ecu.SerialConfig{PortPath: c.PortPath, BaudRate: c.BaudRate}), nil
	case "demo":
		return ecu.NewDemo(), nil
	case "replay":
		if c.ReplayPath == "" {
			return nil, fmt.Errorf("replay source needs a capture file")
		}
		return capture.NewReplay(capture.ReplayConfig{Path: c.ReplayPath, Realtime: c.ReplayRealtime}), nil
	default:
		return nil, fmt.Errorf("unknown ECU type %q", c.Type)
	}
}

// run drives the capture session alongside a front end. The session ends
// when front returns; front is cancelled when the session fails.
func (p *pipeline) run(ctx context.Context, front func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ecu.RunSession(ctx, p.provider, p.syncer) })
	g.Go(func() error {
		defer cancel()
		return front(ctx)
	})
	err := g.Wait()

	p.logger.Close()
	if p.recorder != nil {
		if cerr := p.recorder.Close(); cerr != nil {
			log.Printf("[capture] close: %v", cerr)
		}
	}
	return err
}

func serveCommand(opts *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web dashboard",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := loadSettings(opts)
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			srv := server.New(cfg, server.Deps{
				Sync:     p.syncer,
				Latest:   p.latest,
				Channels: p.channels,
				Registry: p.registry,
				Decoder:  p.settings.ECU.Decoder,
				Logger:   p.logger,
			}, web.FS)

			ctx, cancel := listenStop()
			defer cancel()
			return p.run(ctx, srv.Run)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override listen address (e.g. :8080)")
	return cmd
}

func tuiCommand(opts *options) *cobra.Command {
	logPath := filepath.Join(os.TempDir(), "xr25dash.log")
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Show the dashboard in the terminal",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			// The terminal belongs to termui from here on.
			f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("opening log: %w", err)
			}
			defer f.Close()
			log.SetOutput(f)
			defer log.SetOutput(os.Stderr)

			cfg := loadSettings(opts)
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			deps := tui.Deps{
				Sync:     p.syncer,
				Latest:   p.latest,
				Channels: p.channels,
				Decoder:  p.settings.ECU.Decoder,
				PageHz:   p.settings.Display.PageHz,
				HeaderHz: p.settings.Display.HeaderHz,
			}
			ctx, cancel := listenStop()
			defer cancel()
			return p.run(ctx, func(ctx context.Context) error { return tui.Run(ctx, deps) })
		},
	}
	cmd.Flags().StringVar(&logPath, "log", logPath, "Log file while the terminal is in use")
	return cmd
}
