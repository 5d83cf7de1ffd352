package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "provara",
	Short: "Provara - contribution verification and reward engine",
	Long: `Provara evaluates platform contributions: it scores submitted evidence,
tracks contributor reputation, runs fraud checks, computes a confidence
verdict, and derives exact token and secondary-currency awards.

Every evaluation produces a human-readable reasoning trace and a
content-addressed proof hash, so any verdict can be audited and replayed
bit for bit.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("provara v0.3.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "policy.yaml", "engine policy file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in environment variables that match PROVARA_*.
func initConfig() {
	viper.SetEnvPrefix("PROVARA")
	viper.AutomaticEnv()
}
