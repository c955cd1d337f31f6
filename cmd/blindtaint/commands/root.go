package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/blindtaint/internal/config"
	"github.com/l3aro/blindtaint/internal/log"
	"github.com/l3aro/blindtaint/pkg/audit"
	"github.com/l3aro/blindtaint/pkg/detector"
	"github.com/l3aro/blindtaint/pkg/knowledge"
)

var (
	cfg    *config.Config
	logger *log.DefaultLogger
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "blindtaint",
	Short: "blindtaint - Privacy-preserving taint analysis for PHP",
	Long: `blindtaint finds flows from untrusted input to XSS and SQL injection sinks
in PHP projects without revealing the source code to the auditor.

Workflow:
  client      Correlate a project and encrypt the result (client side)
  auditor     Search an encrypted client output for vulnerable paths
  decrypt     Decrypt the auditor output into readable paths (client side)

Local tools:
  scan        Run the whole analysis over plaintext
  correlate   Print the correlation map of a project
  init        Create a configuration file interactively
  doctor      Check configuration, knowledge and output directories

Use "blindtaint [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configPath, _ := cmd.Flags().GetString("config")
		if configPath != "" {
			cfg, err = config.LoadFromFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if v, _ := cmd.Flags().GetBool("verbose"); v {
			cfg.Verbose = true
		}
		if v, _ := cmd.Flags().GetBool("log-json"); v {
			cfg.LogJSON = true
		}

		level := log.ParseLevel(cfg.LogLevel)
		if cfg.Verbose {
			level = log.DebugLevel
		}
		logger = log.New(log.LoggerConfig{
			Level:      level,
			JSONOutput: cfg.LogJSON,
			Stderr:     cmd.ErrOrStderr(),
			File:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
		})
		return nil
	},
}

// Execute runs the root command. Errors are printed once here, and the
// logger is flushed whether the command succeeded or not.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := RootCmd.ExecuteContext(ctx)
	if err != nil {
		if logger != nil {
			logger.Debug("Command failed", "error", err)
		}
		fmt.Fprintf(RootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	closeLogger()
	return err
}

// closeLogger flushes and closes the command logger, if one was created.
func closeLogger() {
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		fmt.Fprintf(RootCmd.ErrOrStderr(), "Warning: closing log file: %v\n", err)
	}
	logger = nil
}

// auditOptions builds the analysis options from the loaded config.
func auditOptions() (audit.Options, error) {
	know, err := knowledge.Load(cfg.KnowledgePath)
	if err != nil {
		return audit.Options{}, err
	}
	return audit.Options{
		Knowledge:  know,
		Workers:    cfg.Workers,
		MaxNesting: cfg.MaxNesting,
		Detector: detector.Options{
			MaxPathLength: cfg.MaxPathLength,
			MaxSteps:      cfg.MaxSteps,
		},
		Logger: logger,
	}, nil
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project, then global config)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose logging")
	RootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}
