package main

import (
	"time"

	"github.com/aretw0/comfyflow/internal/cli"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Wait until the host answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := persistentFlags(cmd)
		interval, _ := cmd.Flags().GetDuration("interval")
		attempts, _ := cmd.Flags().GetInt("attempts")

		return cli.Ping(cli.PingOptions{
			ConfigPath: configPath,
			Interval:   interval,
			Attempts:   attempts,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().Duration("interval", time.Second, "Delay between attempts")
	pingCmd.Flags().IntP("attempts", "n", 30, "Maximum number of attempts")
}
