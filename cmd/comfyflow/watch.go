package main

import (
	"github.com/aretw0/comfyflow/internal/cli"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [workflow.yaml]",
	Short: "Follow the host and serve the monitoring API",
	Long: `Stays connected to the host and serves its state over HTTP: /status,
/prompts, /logs, /preview, /metrics and a server-sent event stream on
/events. When a workflow file is given it is submitted again every time
it changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, debug := persistentFlags(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		interval, _ := cmd.Flags().GetDuration("interval")

		opts := cli.WatchOptions{
			ConfigPath: configPath,
			Debug:      debug,
			Addr:       addr,
			Interval:   interval,
			Out:        cmd.OutOrStdout(),
		}
		if len(args) > 0 {
			opts.Workflow = args[0]
		}
		return cli.RunWatch(opts)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringP("addr", "a", "", "Monitor listen address (overrides monitor.addr)")
	watchCmd.Flags().Duration("interval", 0, "Quiet period after a workflow change before resubmitting (default 300ms)")
}
