package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rob-gra/synchrophasor-timesync/offsync/client"
)

func main() {
	var (
		addr  string
		mode  string
		count int
	)

	rootCmd := &cobra.Command{
		Use:   "synclient",
		Short: "Sync daemon that tracks the offset service's clock correction",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := client.Config{
				Addr:  addr,
				Mode:  client.Mode(mode),
				Count: count,
			}
			if err := cfg.Valid(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			c, err := client.Dial(cfg)
			if err != nil {
				return fmt.Errorf("dial %s: %w", cfg.Addr, err)
			}
			defer c.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("synclient syncing with %s (mode=%s)\n", cfg.Addr, cfg.Mode)
			if err := c.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			fmt.Printf("final offset: %.6fs\n", c.Offset().OffsetSeconds())
			return nil
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:12345", "offset service UDP address")
	rootCmd.Flags().StringVar(&mode, "mode", "raw", "correction scheme: raw, ewma, kalman, pid")
	rootCmd.Flags().IntVar(&count, "count", 0, "number of sync packets to send (0 = unlimited)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
