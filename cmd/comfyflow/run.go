package main

import (
	"github.com/aretw0/comfyflow/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Submit a workflow and wait for its images",
	Long: `Compiles the workflow file against the host schema, submits it, follows
its execution and saves every produced image below the output directory.
The command fails when the execution fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, debug := persistentFlags(cmd)
		jsonMode, _ := cmd.Flags().GetBool("json")
		quiet, _ := cmd.Flags().GetBool("quiet")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		extra, _ := cmd.Flags().GetString("extra")

		return cli.Execute(cli.RunOptions{
			ConfigPath: configPath,
			Workflow:   args[0],
			Debug:      debug,
			JSON:       jsonMode,
			Quiet:      quiet,
			Timeout:    timeout,
			OutputDir:  output,
			Format:     format,
			Extra:      extra,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Print the result as JSON")
	runCmd.Flags().BoolP("quiet", "q", false, "Print nothing on success")
	runCmd.Flags().Duration("timeout", 0, "Give up after this long (0 waits forever)")
	runCmd.Flags().StringP("output", "o", "", "Output directory (overrides host.output_dir)")
	runCmd.Flags().String("format", "", "Save format: raw, png or jpeg")
	runCmd.Flags().String("extra", "", "JSON object merged into the image metadata")
}
