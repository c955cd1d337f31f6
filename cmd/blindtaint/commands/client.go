package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/internal/log"
	"github.com/l3aro/blindtaint/pkg/audit"
)

// clientCmd represents the client command
var clientCmd = &cobra.Command{
	Use:   "client <source-dir>",
	Short: "Correlate a PHP project and encrypt the result",
	Long: `Lexes and correlates every PHP file under source-dir, encrypts the
resulting correlation map and writes client_side_output for the auditor.
An identifier legend (client_side_legend) is written alongside, sealed with
the secret password; keep it on the client side.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := secretPassword(cmd)
		if err != nil {
			return err
		}
		shared, err := sharedPassword(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.ClientOutput
		}
		legend, _ := cmd.Flags().GetString("legend-output")
		if legend == "" {
			legend = cfg.EffectiveLegendOutput()
		}

		opts, err := auditOptions()
		if err != nil {
			return err
		}

		spinner := log.NewProgressSpinner(cmd.ErrOrStderr(), "Correlating and encrypting...")
		if log.IsTTY() && !cfg.Verbose {
			spinner.Start()
		}
		result, err := audit.Client(cmd.Context(), audit.ClientRequest{
			SecretPassword: secret,
			SharedPassword: shared,
			SourceDir:      args[0],
			OutputDir:      output,
			LegendDir:      legend,
		}, opts)
		spinner.Stop()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Encrypted %d PHP file(s) (%d scopes, %d tokens).\n", result.Units, result.Scopes, result.Tokens)
		fmt.Fprintf(out, "Client output: %s\n", result.OutputPath)
		fmt.Fprintf(out, "Identifier legend: %s (keep private)\n", result.LegendPath)
		fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
		return nil
	},
}

func init() {
	clientCmd.Flags().StringP("output", "o", "", "Output directory (default from config)")
	clientCmd.Flags().String("legend-output", "", "Directory for the identifier legend (default: output directory)")
	addPasswordFlags(clientCmd, true)
	RootCmd.AddCommand(clientCmd)
}
