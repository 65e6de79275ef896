package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/abq-pulse/trafficwatch/internal/monitoring"
	"github.com/abq-pulse/trafficwatch/internal/schedule"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show quota usage, sample counts and the current rotation state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := monitoring.NewCollector(env.store, env.counter, cfg.Quota.DailyLimit).Collect(ctx)
		if err != nil {
			return err
		}

		rotation, err := schedule.FromConfig(cfg.Baseline)
		if err != nil {
			return err
		}
		_, isoWeek := time.Now().In(env.loc).ISOWeek()

		out := struct {
			*monitoring.MetricsSnapshot
			RotationGroups int `json:"rotation_groups"`
			ActiveGroup    int `json:"active_group"`
			ISOWeek        int `json:"iso_week"`
		}{
			MetricsSnapshot: snap,
			RotationGroups:  rotation.Groups,
			ActiveGroup:     schedule.ActiveGroup(isoWeek, rotation.Groups),
			ISOWeek:         isoWeek,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
