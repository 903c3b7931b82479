package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/comfyflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of comfyflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "comfyflow version %s\n", strings.TrimSpace(comfyflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
