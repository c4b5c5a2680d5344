package main

import (
	"fmt"
	"os"
	"runtime"

	internal "github.com/ZanzyTHEbar/streammash/smash"
	"github.com/ZanzyTHEbar/streammash/smash/config"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// setup loads the config and builds the logger. Flags win over the config
// file and environment when set.
func (g *globalFlags) setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return cfg, internal.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format), nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", internal.DefaultAppName, version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
		},
	}
}

func rootCommand() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   internal.DefaultAppCMDShortCut,
		Short: "Stream query sequences against reference k-mer sketches",
		Long: `smash: streaming k-mer membership matching

Reference sketches are fixed-size lists of k-mers, imported from FASTA/FASTQ
files into a sketch database. Query reads are streamed through a worker pool
and, for each configured k-mer size, every sketch k-mer that has a query
window as its prefix is counted. The result is one row per sketch.

Workflow:
  1. smash import --name refA refA.fa   (once per reference)
  2. smash run reads_1.fq reads_2.fq`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default searches ./, etc/smash, ~/.config/smash)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", internal.DefaultLogLevel, "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "json", "Log format: json or console")

	rootCmd.AddCommand(importCommand(g))
	rootCmd.AddCommand(runCommand(g))
	rootCmd.AddCommand(versionCommand())
	return rootCmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
