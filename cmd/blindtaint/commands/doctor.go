package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/internal/config"
	"github.com/l3aro/blindtaint/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration, knowledge and outputs",
	Long: `Checks the configuration in use, verifies that the knowledge source
loads, that the PHP parser works and that the output directories are
writable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = effectiveConfigPath()
		}

		result, err := healthcheck.Check(cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)

		if result.Failed() {
			return fmt.Errorf("health check failed: one or more checks reported an error")
		}
		return nil
	},
}

// effectiveConfigPath returns the highest priority config file present,
// or an empty string when only defaults apply.
func effectiveConfigPath() string {
	if path := config.ProjectConfigFilePath(); fileExists(path) {
		return path
	}
	if path := config.GlobalConfigFilePath(); fileExists(path) {
		return path
	}
	return ""
}

func displayDoctorResult(out io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Fprintln(out, "Using config: defaults (run 'blindtaint init' to create a config file)")
	} else {
		fmt.Fprintf(out, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	}
	fmt.Fprintln(out)
	printChecks(out, result)
}

func printChecks(out io.Writer, result *healthcheck.HealthCheckResult) {
	for _, c := range result.Checks() {
		fmt.Fprintf(out, "%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Fprintf(out, "  %s\n", c.Detail)
		}
		fmt.Fprintf(out, "  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Error != "" && c.Status == healthcheck.StatusError {
			fmt.Fprintf(out, "  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusMissing:
		return "◐"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
