package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bcnofne/shipos/pkg/execguard"
	"github.com/bcnofne/shipos/pkg/memory"
	"github.com/bcnofne/shipos/pkg/watchdog"
)

func watchdogCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Run the self-repair watchdog (daemon, or one sweep with --once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := bootstrap()
			if err != nil {
				slog.Error("Startup failed", "error", err)
				return err
			}
			wd := watchdog.New(&cfg.Watchdog, st, memory.New(st), execguard.New(&cfg.Exec, st))

			if once {
				actions := wd.RunOnce(context.Background())
				for _, a := range actions {
					fmt.Printf("%-16s %s\n", a.Action, a.Detail)
				}
				fmt.Printf("%d repair action(s)\n", len(actions))
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			wd.Start(ctx)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			sig := <-sigCh
			slog.Info("Shutdown signal received", "signal", sig)
			wd.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}
