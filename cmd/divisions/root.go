package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	model       string
	concurrency int
	outputDir   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "divisions",
		Short: "Turn a listing photo gallery into one record per room",
		Long: `Divisions classifies every photo of a real-estate listing with a vision model,
then clusters photos of the same room by perceptual hash and merges them into
one division record per physical room.

Run "divisions run" for the whole pipeline, or "classify" and "dedup" to run
the two stages separately.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&flags.model, "model", "", "vision model (overrides config)")
	cmd.PersistentFlags().IntVar(&flags.concurrency, "concurrency", 0, "max concurrent vision calls (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.outputDir, "out", "", "output directory (overrides config)")

	cmd.AddCommand(
		newClassifyCmd(flags),
		newDedupCmd(flags),
		newRunCmd(flags),
	)
	return cmd
}
