package main

import (
	"github.com/spf13/cobra"

	"github.com/provara/engine/pkg/config"
)

// configCmd groups configuration subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate engine policy files",
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the policy file and exit",
	Long: `Validate parses the policy file, checks it against the embedded JSON
Schema, and runs the engine's semantic checks (weights sum to 1.0, distinct
category bases, required fraud-window parameters). Exits non-zero on the
first problem, the same way engine startup would.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return err
		}
		cmd.Printf("%s: ok\n", cfgFile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
