package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/abq-pulse/trafficwatch/internal/impact"
)

var impactAll bool

var impactCmd = &cobra.Command{
	Use:   "impact [occurrence-id]",
	Short: "Compute event traffic impact estimates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !impactAll && len(args) == 0 {
			return eris.New("an occurrence id or --all is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		engine := impact.NewEngine(env.store, env.loc)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if impactAll {
			summary, err := engine.ComputeAll(ctx)
			if err != nil {
				return err
			}
			return enc.Encode(summary)
		}

		result, err := engine.Compute(ctx, args[0])
		if err != nil {
			return err
		}
		return enc.Encode(result)
	},
}

func init() {
	impactCmd.Flags().BoolVar(&impactAll, "all", false, "analyze every event with samples")
	rootCmd.AddCommand(impactCmd)
}
