package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute the full pairwise distance cache",
	Long:  "Fetches the commute duration for every unordered area pair and persists both directions. Already-cached pairs are skipped, so an interrupted run resumes where it left off.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine()
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Orchestrator.PopulateAll(ctx, env.Registry)
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)
}
