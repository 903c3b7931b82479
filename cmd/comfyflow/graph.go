package main

import (
	"github.com/aretw0/comfyflow/internal/cli"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <workflow.yaml>",
	Short: "Export a workflow without running it",
	Long: `Compiles the workflow file and prints it as a Mermaid diagram, as the
execution payload sent to POST /prompt, or as the visual graph embedded
in saved images.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := persistentFlags(cmd)
		format, _ := cmd.Flags().GetString("format")
		schemaFile, _ := cmd.Flags().GetString("schema")
		prefixed, _ := cmd.Flags().GetBool("prefixed")
		groups, _ := cmd.Flags().GetBool("groups")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		opts := cli.GraphOptions{
			Workflow:   args[0],
			SchemaFile: schemaFile,
			ConfigPath: configPath,
			Format:     format,
			Groups:     groups,
			Timeout:    timeout,
			Out:        cmd.OutOrStdout(),
		}
		if prefixed {
			opts.IDMode = graph.IDPrefixed
		}
		return cli.Graph(opts)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", cli.FormatMermaid, "Output format: mermaid, prompt or litegraph")
	graphCmd.Flags().String("schema", "", "Read the node schema from an /object_info JSON file instead of the host")
	graphCmd.Flags().Bool("prefixed", false, "Use <Type>_<n> ids in the prompt payload")
	graphCmd.Flags().Bool("groups", true, "Render groups as Mermaid subgraphs")
	graphCmd.Flags().Duration("timeout", 0, "Schema download timeout (default 30s)")
}
