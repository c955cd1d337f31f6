package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/pkg/artifact"
	"github.com/l3aro/blindtaint/pkg/audit"
)

// decryptCmd represents the decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt <auditor-output>",
	Short: "Decrypt the auditor output into readable paths",
	Long: `Opens an auditor_side_output and decrypts its paths with the client's
passwords. Abstract identifiers are replaced by source names when the
identifier legend written by "client" is available.`,
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
		legend, _ := cmd.Flags().GetString("legend")
		if legend == "" {
			legend = filepath.Join(cfg.EffectiveLegendOutput(), artifact.LegendName)
		}

		opts, err := auditOptions()
		if err != nil {
			return err
		}
		report, err := audit.Decrypt(cmd.Context(), audit.DecryptRequest{
			SecretPassword: secret,
			SharedPassword: shared,
			AuditorOutput:  args[0],
			LegendPath:     legend,
		}, opts)
		if err != nil {
			return err
		}
		return report.Write(cmd.OutOrStdout())
	},
}

func init() {
	decryptCmd.Flags().String("legend", "", "Identifier legend file (default: "+artifact.LegendName+" in the legend output directory)")
	addPasswordFlags(decryptCmd, true)
	RootCmd.AddCommand(decryptCmd)
}
