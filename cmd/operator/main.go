// Package main provides the CLI entry point for Operator, an agentic
// computer-use platform.
//
// Operator binds language-model-driven agents to ephemeral, isolated compute
// environments. Each session owns one environment exposing shell execution,
// browser automation, screenshots, and file editing; the agent accomplishes
// multi-step tasks by calling those tools turn by turn, and can discover
// additional capabilities from registered tool servers at runtime.
//
// # Basic Usage
//
// Start the orchestrator:
//
//	operator serve --config operator.yaml
//
// # Environment Variables
//
//   - OPERATOR_CONFIG: Path to configuration file (default: operator.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key, referenced from the config file
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "operator",
		Short:   "Agentic computer-use session orchestrator",
		Version: version,
	}
	rootCmd.AddCommand(buildServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("OPERATOR_CONFIG"); env != "" {
		return env
	}
	return "operator.yaml"
}
