// shipOS supervisor — runs the planner loop, voice arbiter, scheduler,
// watchdog, display, and the chat webhook server on a single board.
package main

import "os"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
