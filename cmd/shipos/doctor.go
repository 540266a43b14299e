package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcnofne/shipos/pkg/health"
)

// doctorCmd runs every probe once and prints a table. Exit status: 0 OK,
// 1 WARN, 2 CRITICAL.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run health probes once and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := bootstrap()
			if err != nil {
				slog.Error("Startup failed", "error", err)
				return err
			}

			sample := health.NewMonitor(&cfg.Health, st).RunAll(context.Background())
			for _, c := range sample.Components {
				fmt.Printf("%-12s %-9s %8.1f  %s\n", c.Name, c.Status, c.Value, c.Message)
			}
			fmt.Printf("overall: %s\n", sample.Overall)

			switch sample.Overall {
			case health.StatusCritical:
				os.Exit(2)
			case health.StatusWarn:
				os.Exit(1)
			}
			return nil
		},
	}
}
