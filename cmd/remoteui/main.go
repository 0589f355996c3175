// Command remoteui drives Claude Code sessions running in tmux from a phone:
// an HTTP API for reading and typing into panes, push notifications fired by
// Claude hooks and a Telegram listener.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "remoteui:", err)
		os.Exit(1)
	}
}
