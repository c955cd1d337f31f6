package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// Environment variables consulted when a password flag is not set.
const (
	secretPasswordEnv = "BLINDTAINT_SECRET_PASSWORD"
	sharedPasswordEnv = "BLINDTAINT_SHARED_PASSWORD"
)

func addPasswordFlags(cmd *cobra.Command, secret bool) {
	if secret {
		cmd.Flags().String("secret-password", "", "Secret password, known only to the client (env "+secretPasswordEnv+")")
	}
	cmd.Flags().String("shared-password", "", "Password shared between client and auditor (env "+sharedPasswordEnv+")")
}

// password resolves a password from its flag, then the environment, then
// an interactive prompt.
func password(cmd *cobra.Command, flag, env, title string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	if !isInteractive() {
		return "", fmt.Errorf("--%s is required (or set %s)", flag, env)
	}

	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("password must not be empty")
					}
					return nil
				}).
				Value(&value),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("interactive prompt failed: %w", err)
	}
	return value, nil
}

func secretPassword(cmd *cobra.Command) (string, error) {
	return password(cmd, "secret-password", secretPasswordEnv, "Secret password")
}

func sharedPassword(cmd *cobra.Command) (string, error) {
	return password(cmd, "shared-password", sharedPasswordEnv, "Shared password")
}

// isInteractive reports whether stdin is a terminal.
func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
