package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/internal/config"
	"github.com/l3aro/blindtaint/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize blindtaint configuration interactively",
	Long: `Guides you through setting up blindtaint configuration step by step.
Creates a config file with the knowledge source, analysis bounds and
default output directories.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd.OutOrStdout())
	},
}

func runInit(out io.Writer) error {
	if !isInteractive() {
		return fmt.Errorf("init requires an interactive terminal")
	}

	newCfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	knowledgePath := newCfg.KnowledgePath
	workers := strconv.Itoa(newCfg.Workers)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Knowledge file (optional, press Enter for the built-in PHP knowledge)").
				Placeholder("built-in").
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					if !fileExists(s) {
						return fmt.Errorf("%s does not exist", s)
					}
					return nil
				}).
				Value(&knowledgePath),
			huh.NewInput().
				Title("Parallel workers").
				Description("Files lexed and correlated at the same time").
				Validate(positiveInt).
				Value(&workers),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	newCfg.KnowledgePath = knowledgePath
	newCfg.Workers, _ = strconv.Atoi(workers)

	// === SECTION 2: Outputs ===
	clientOutput := newCfg.ClientOutput
	auditorOutput := newCfg.AuditorOutput
	legendOutput := newCfg.LegendOutput
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Client output directory").
				Placeholder(newCfg.ClientOutput).
				Value(&clientOutput),
			huh.NewInput().
				Title("Auditor output directory").
				Placeholder(newCfg.AuditorOutput).
				Value(&auditorOutput),
			huh.NewInput().
				Title("Identifier legend directory (optional, press Enter to use the client output)").
				Placeholder("client output").
				Value(&legendOutput),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if clientOutput != "" {
		newCfg.ClientOutput = clientOutput
	}
	if auditorOutput != "" {
		newCfg.AuditorOutput = auditorOutput
	}
	newCfg.LegendOutput = legendOutput

	// === SECTION 3: Logging ===
	logLevel := newCfg.LogLevel
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Info", "info"),
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&logLevel),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	newCfg.LogLevel = logLevel

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.blindtaint/config.yaml)", "project"),
					huh.NewOption("Global (~/.blindtaint/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if fileExists(configPath) {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Fprintln(out, "\n=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", configPath)
	printConfig(out, newCfg)
	fmt.Fprintln(out, "================================")

	if err := newCfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Fprintln(out, "\n=== Running Health Check ===")
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(out, "\nConfig Scope: %s\n", result.SavedScope)
	if abs, err := filepath.Abs(configPath); err == nil {
		fmt.Fprintf(out, "Config Path: %s\n\n", abs)
	}
	printChecks(out, result)

	fmt.Fprintln(out, "\n=== Initialization Complete ===")
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func printConfig(out io.Writer, c *config.Config) {
	knowledgePath := c.KnowledgePath
	if knowledgePath == "" {
		knowledgePath = "built-in"
	}
	fmt.Fprintf(out, "Knowledge: %s\n", knowledgePath)
	fmt.Fprintf(out, "Workers: %d\n", c.Workers)
	fmt.Fprintf(out, "Client output: %s\n", c.ClientOutput)
	fmt.Fprintf(out, "Auditor output: %s\n", c.AuditorOutput)
	fmt.Fprintf(out, "Legend output: %s\n", c.EffectiveLegendOutput())
	fmt.Fprintf(out, "Log level: %s\n", c.LogLevel)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func init() {
	RootCmd.AddCommand(initCmd)
}
