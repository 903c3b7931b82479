package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "comfyflow",
	Short: "comfyflow builds workflows and runs them on a ComfyUI-style engine",
	Long: `comfyflow compiles workflow files into node graphs, submits them to an
execution engine, tracks their progress over the WebSocket and saves the
produced images locally.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ./comfyflow.yaml or ~/.config/comfyflow/comfyflow.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log debug output to stderr")
}

func persistentFlags(cmd *cobra.Command) (configPath string, debug bool) {
	configPath, _ = cmd.Flags().GetString("config")
	debug, _ = cmd.Flags().GetBool("debug")
	return configPath, debug
}
