package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

// speakCmd drops a speak action into the audio command file. The running
// supervisor's voice arbiter picks it up within its poll interval.
func speakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "speak <text>",
		Short: "Queue text for the running supervisor to speak",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("nothing to speak")
			}
			_, st, err := bootstrap()
			if err != nil {
				slog.Error("Startup failed", "error", err)
				return err
			}
			st.WriteAudioCommand("speak", map[string]string{"text": text})
			fmt.Println("queued")
			return nil
		},
	}
}
