// Command xr25dash reads the XR25 diagnostic stream of a Renault Fenix
// ECU and shows it on a web or terminal dashboard.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/server"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	demo       bool
	replay     string
	decoder    string
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := rootCommand().Execute(); err != nil {
		log.Fatalln(err)
	}
}

func rootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "xr25dash",
		Short:         "XR25 diagnostic dashboard for Renault Fenix ECUs",
		Args:          cobra.ExactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", server.DefaultConfigPath, "Path to config file")
	cmd.PersistentFlags().BoolVar(&opts.demo, "demo", false, "Run with a simulated ECU")
	cmd.PersistentFlags().StringVar(&opts.replay, "replay", "", "Replay a capture file instead of reading the ECU")
	cmd.PersistentFlags().StringVar(&opts.decoder, "decoder", "", "Decoder dialect (overrides config)")

	cmd.AddCommand(serveCommand(opts))
	cmd.AddCommand(tuiCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "dump FILE",
		Short: "Decode and print a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return dump(c.OutOrStdout(), opts, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "decoders",
		Short: "List the available decoder dialects",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			for _, name := range ecu.NewRegistry().Names() {
				fmt.Fprintln(c.OutOrStdout(), name)
			}
			return nil
		},
	})
	return cmd
}

// loadSettings reads the config file and applies the command line overrides.
func loadSettings(opts *options) *server.Config {
	cfg := server.LoadConfig(opts.configPath)
	if opts.demo {
		cfg.ECU.Type = "demo"
	}
	if opts.replay != "" {
		cfg.ECU.Type = "replay"
		cfg.ECU.ReplayPath = opts.replay
	}
	if opts.decoder != "" {
		cfg.ECU.Decoder = opts.decoder
	}
	return cfg
}

// listenStop returns a context cancelled on SIGINT or SIGTERM.
func listenStop() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("[main] received %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
