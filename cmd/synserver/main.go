package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rob-gra/synchrophasor-timesync/offsync/server"
)

func main() {
	var (
		configPath     string
		addr           string
		hideRaw        bool
		snapshot       string
		receiveTimeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "synserver",
		Short: "Clock-offset sync service for C37.118 synchrophasor sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.DefaultConfig()
			if configPath != "" {
				fileCfg, err := server.LoadConfigFile(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = fileCfg
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if snapshot != "" {
				cfg.SnapshotPath = snapshot
			}
			if hideRaw {
				cfg.HideRaw = true
			}
			if receiveTimeout != 0 {
				cfg.ReceiveTimeout = receiveTimeout
			}
			if err := cfg.Valid(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("bind: %w", err)
			}
			defer srv.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("synserver listening on %s\n", cfg.Addr)
			return srv.Run(ctx)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "UDP listen address (overrides config)")
	rootCmd.Flags().BoolVar(&hideRaw, "hide-raw", false, "suppress debug logging of raw-scheme samples")
	rootCmd.Flags().StringVar(&snapshot, "snapshot", "", "path to write a per-client JSON snapshot on shutdown (and every snapshot_every packets when the config file sets it)")
	rootCmd.Flags().DurationVar(&receiveTimeout, "receive-timeout", 0, "bound each blocking socket read (0 = none, 1s recommended for shutdown responsiveness)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
