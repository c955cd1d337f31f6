package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/pkg/audit"
	"github.com/l3aro/blindtaint/pkg/detector"
	"github.com/l3aro/blindtaint/pkg/token"
)

// ScanOutput represents the JSON output of the scan command
type ScanOutput struct {
	Vuln  token.Vuln        `json:"vuln"`
	Paths []token.Path      `json:"paths"`
	Names map[string]string `json:"names,omitempty"`
	Stats detector.Stats    `json:"stats"`
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <source-dir>",
	Short: "Run the taint analysis over plaintext",
	Long: `Correlates a PHP project and searches it for vulnerable paths without
any encryption. Useful to check a project locally before running the
client/auditor exchange.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vuln, _ := cmd.Flags().GetString("vuln")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		opts, err := auditOptions()
		if err != nil {
			return err
		}
		report, err := audit.Scan(cmd.Context(), args[0], vuln, opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ScanOutput{
				Vuln:  report.Vuln,
				Paths: report.Paths,
				Names: report.Names,
				Stats: report.Stats,
			})
		}
		return report.Write(cmd.OutOrStdout())
	},
}

func init() {
	scanCmd.Flags().String("vuln", "xss", "Vulnerability kind: xss or sqli")
	scanCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(scanCmd)
}
