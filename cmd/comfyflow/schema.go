package main

import (
	"github.com/aretw0/comfyflow/internal/cli"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Download and list the node types of the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := persistentFlags(cmd)
		category, _ := cmd.Flags().GetString("category")
		jsonMode, _ := cmd.Flags().GetBool("json")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		return cli.Schema(cli.SchemaOptions{
			ConfigPath: configPath,
			Category:   category,
			JSON:       jsonMode,
			Timeout:    timeout,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().String("category", "", "Only list node types of this category")
	schemaCmd.Flags().Bool("json", false, "Print node types as JSON")
	schemaCmd.Flags().Duration("timeout", 0, "Download timeout (default 30s)")
}
