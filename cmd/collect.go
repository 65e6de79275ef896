package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abq-pulse/trafficwatch/internal/collector"
	"github.com/abq-pulse/trafficwatch/internal/schedule"
	"github.com/abq-pulse/trafficwatch/internal/tomtom"
	"github.com/abq-pulse/trafficwatch/internal/trigger"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection tick (cron owns the periodicity)",
}

var collectBaselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Collect baseline readings for the active rotation group",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rotation, err := schedule.FromConfig(cfg.Baseline)
		if err != nil {
			return err
		}

		venues, err := env.store.ListVenues(ctx)
		if err != nil {
			return err
		}
		if err := rotation.Validate(len(venues), cfg.Quota.DailyLimit); err != nil {
			return eris.Wrap(err, "rotation does not fit daily quota")
		}

		now := time.Now().In(env.loc)
		requests := rotation.Plan(now, venues)
		if len(requests) == 0 {
			zap.L().Info("no baseline slot due", zap.Time("now", now))
			return nil
		}

		jobs := make([]collector.Job, 0, len(requests))
		for _, req := range requests {
			jobs = append(jobs, collector.Job{
				Venue: req.Venue,
				Tag: tomtom.SampleTag{
					BaselineGroup: fmt.Sprintf("%s-%d", rotation.GroupTag, req.Group),
				},
			})
		}

		stats, err := env.newCollector().Run(ctx, jobs)
		if err != nil {
			return err
		}

		zap.L().Info("baseline tick finished",
			zap.String("slot", requests[0].Slot.String()),
			zap.Int("group", requests[0].Group),
			zap.Int("collected", stats.Collected),
			zap.Int("failed", stats.Failed),
			zap.Int("dropped", stats.Dropped))
		return nil
	},
}

var collectEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Collect readings for events near their start time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		planner := trigger.NewPlanner(trigger.FromConfig(cfg.Events), env.store)

		now := time.Now().UTC()
		from, to := planner.WindowAround(now)
		candidates, err := env.store.ListEventsStartingBetween(ctx, from, to)
		if err != nil {
			return err
		}

		requests, skips, err := planner.Plan(ctx, now, candidates)
		if err != nil {
			return err
		}

		jobs := make([]collector.Job, 0, len(requests))
		for _, req := range requests {
			jobs = append(jobs, collector.Job{
				Venue: req.Venue,
				Tag:   tomtom.SampleTag{LinkedEvent: req.Occurrence.ID},
			})
		}

		stats, err := env.newCollector().Run(ctx, jobs)
		if err != nil {
			return err
		}

		zap.L().Info("event tick finished",
			zap.Int("candidates", len(candidates)),
			zap.Int("collected", stats.Collected),
			zap.Int("failed", stats.Failed),
			zap.Int("dropped", stats.Dropped),
			zap.Int("skip_missing_start", skips.MissingStartTime),
			zap.Int("skip_missing_venue", skips.MissingVenue),
			zap.Int("skip_at_target", skips.AtTarget),
			zap.Int("skip_not_due", skips.NotDue))
		return nil
	},
}

func init() {
	collectCmd.AddCommand(collectBaselineCmd)
	collectCmd.AddCommand(collectEventsCmd)
	rootCmd.AddCommand(collectCmd)
}
