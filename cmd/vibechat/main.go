package main

import (
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "vibechat",
	Short: "Vibe Chat CLI",
	Long:  "Command-line client for the Vibe Chat service.\nSign in, list and create chats, and open a live conversation in the terminal.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
