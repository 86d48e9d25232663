package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and PORTAL_*
environment overrides have been applied.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false,
		"print secrets instead of masking them")

	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := cfg.Render(showSecrets)
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	_, err = os.Stdout.Write(out)

	return err
}
