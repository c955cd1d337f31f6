package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/pkg/audit"
)

// correlateCmd represents the correlate command
var correlateCmd = &cobra.Command{
	Use:   "correlate <source-dir>",
	Short: "Print the correlation map of a PHP project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		opts, err := auditOptions()
		if err != nil {
			return err
		}
		project, err := audit.Correlate(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(project)
		}
		return audit.WriteMap(cmd.OutOrStdout(), project.Map, project.Legend)
	},
}

func init() {
	correlateCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(correlateCmd)
}
