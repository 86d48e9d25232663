package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/minucst/portal/pkg/api"
	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/spf13/cobra"
)

var showDigests bool

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "List the access codes and their roles",
	RunE:  runCodes,
}

func init() {
	codesCmd.Flags().BoolVar(&showDigests, "digests", false,
		"also print each code's digest under the configured hasher")

	rootCmd.AddCommand(codesCmd)
}

func runCodes(cmd *cobra.Command, args []string) error {
	var hasher codes.Hasher

	if showDigests {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		hasher, err = api.NewHasher(&cfg.Auth)
		if err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	for _, code := range codes.GenerateValidCodes() {
		if hasher == nil {
			fmt.Fprintf(tw, "%s\t%s\n", code, codes.RoleOf(code))

			continue
		}

		digest, err := hasher.Hash(code)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", code, err)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\n", code, codes.RoleOf(code), digest)
	}

	return tw.Flush()
}
