package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/pkg/audit"
)

// auditorCmd represents the auditor command
var auditorCmd = &cobra.Command{
	Use:   "auditor <client-output>",
	Short: "Search an encrypted client output for vulnerable paths",
	Long: `Opens a client_side_output with the shared password and searches the
encrypted correlation map for flows of the requested vulnerability kind.
The paths found stay encrypted; they are written to auditor_side_output
and can only be read by the client.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vuln, _ := cmd.Flags().GetString("vuln")
		shared, err := sharedPassword(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.AuditorOutput
		}

		opts, err := auditOptions()
		if err != nil {
			return err
		}
		result, err := audit.Audit(cmd.Context(), audit.AuditRequest{
			SharedPassword: shared,
			ClientOutput:   args[0],
			Vuln:           vuln,
			OutputDir:      output,
		}, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Found %d candidate %s path(s) over %d sink(s).\n", result.Paths, result.Vuln, result.Stats.Sinks)
		if result.Stats.Truncated > 0 {
			fmt.Fprintf(out, "Search truncated for %d sink(s); raise max_steps for a complete search.\n", result.Stats.Truncated)
		}
		fmt.Fprintf(out, "Auditor output: %s\n", result.OutputPath)
		return nil
	},
}

func init() {
	auditorCmd.Flags().String("vuln", "", "Vulnerability kind: xss or sqli")
	auditorCmd.Flags().StringP("output", "o", "", "Output directory (default from config)")
	addPasswordFlags(auditorCmd, false)
	_ = auditorCmd.MarkFlagRequired("vuln")
	RootCmd.AddCommand(auditorCmd)
}
