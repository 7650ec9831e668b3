package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statushub/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a StatusHub configuration file without starting the server.

This command parses the YAML, expands environment variables, loads the
origins file, and validates all fields. It's useful for CI/CD pipelines or
pre-deployment checks. Environment overrides are not applied.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  statushub validate -c statushub.yaml
  statushub validate --config /etc/statushub/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	origins, err := config.ResolveOrigins(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	printSummary(cmd.OutOrStdout(), cfg, origins)
	return nil
}

func printSummary(out io.Writer, cfg *config.Config, origins []string) {
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:               %d\n", cfg.Port)
	fmt.Fprintf(out, "  Log level:          %s\n", cfg.LogLevel)
	fmt.Fprintf(out, "  Heartbeat interval: %s\n", cfg.HeartbeatInterval.Duration())
	fmt.Fprintf(out, "  Allowed origins:    %d\n", len(origins))
	fmt.Fprintf(out, "  SET secret:         %s\n", configured(cfg.Secrets.Set))
	fmt.Fprintf(out, "  GET secret:         %s\n", configured(cfg.Secrets.Get))
}

func configured(secret string) string {
	if secret == "" {
		return "not set (insecure default)"
	}
	return "configured"
}
