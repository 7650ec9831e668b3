// Package main is the entry point for the statushub CLI.
//
// StatusHub can be run either as a library (SDK) or as a standalone binary
// configured by YAML and environment variables. This CLI provides the
// standalone binary approach.
//
// Usage:
//
//	statushub serve                      # Start with environment configuration
//	statushub serve -c statushub.yaml    # Start with a config file
//	statushub validate -c statushub.yaml # Validate configuration
//	statushub version                    # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "statushub",
	Short: "A real-time presence hub for devices",
	Long: `StatusHub keeps one shared presence document describing which devices
are active and pushes every change to connected observers over
Server-Sent Events or WebSocket.

Quick start:
  1. Export SECRET and GET_SECRET
  2. Run: statushub serve
  3. Report:  curl -H "X-Set-Secret: $SECRET" -d '{"id":"pc","app_name":"Editor","using":true}' localhost:3000/api/status
  4. Observe: curl -N "localhost:3000/events?secret=$GET_SECRET"

Environment:
  PORT, HOST, SECRET, GET_SECRET, LOG_LEVEL, ALLOWED_ORIGINS_FILE`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this statushub binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "statushub %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
