package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sessionkit",
	Short: "sessionkit manages a client session and device identity",
	Long: `sessionkit is the session and device-identity lifecycle manager of the
back-office client: it authenticates outgoing requests, expires stale
sessions, and resolves a stable device identity.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(deviceCmd)
}
