package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	logFormatText = "text"
	logFormatJSON = "json"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Access-code authentication server for the training portal",
	Long: `portal validates participant access codes, applies per-source and
per-code lockouts with CAPTCHA escalation, tracks primary and dashboard
sessions, and serves the superadmin dashboard API.`,
	SilenceUsage:      true,
	PersistentPreRunE: configureLogger,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "portal %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML config file")
	flags.StringVar(&logLevel, "log-level", "info",
		"log level: "+strings.Join(logLevelNames(), "|"))
	flags.StringVar(&logFormat, "log-format", logFormatText,
		"log output format: "+logFormatText+"|"+logFormatJSON)

	rootCmd.AddCommand(versionCmd)
}

func main() {
	log.SetOutput(os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}

// configureLogger applies the --log-level and --log-format flags before
// any subcommand runs. serve may override the level from config.
func configureLogger(_ *cobra.Command, _ []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	switch logFormat {
	case logFormatText:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case logFormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}

	log.SetLevel(level)

	return nil
}

func logLevelNames() []string {
	names := make([]string, len(logrus.AllLevels))
	for i, level := range logrus.AllLevels {
		names[i] = level.String()
	}

	return names
}
