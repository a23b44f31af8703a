package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"quantsignal/internal/app"
	"quantsignal/internal/monitor"
	"quantsignal/internal/scheduler"
)

var (
	monStocks   []string
	monInterval string
	monPolicy   string
	monOnce     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll live quotes and alert on strategy signals until interrupted",
	Long: `Load active strategies and local history, then fetch one batch quote per
tick, evaluate every (instrument, strategy) pair and dispatch alerts.

Examples:
  quantsignal monitor
  quantsignal monitor --stocks BTCUSDT,SOLUSDT --interval 5m --policy edge
  quantsignal monitor --once`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			opts, err := monitorOptions(a)
			if err != nil {
				return err
			}
			if monOnce {
				return runMonitorOnce(ctx, cmd, a, opts)
			}
			return a.RunMonitor(ctx, opts)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor together with the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			opts, err := monitorOptions(a)
			if err != nil {
				return err
			}
			return a.Serve(ctx, opts)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{monitorCmd, serveCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringSliceVar(&monStocks, "stocks", nil, "instruments to watch (default: config data.instruments)")
		c.Flags().StringVar(&monInterval, "interval", "", "tick interval, e.g. 60s or 5m (default: config monitor.interval)")
		c.Flags().StringVar(&monPolicy, "policy", "", "alert policy: level or edge (default: config monitor.alert_policy)")
	}
	monitorCmd.Flags().BoolVar(&monOnce, "once", false, "run a single tick, print its report and exit")
}

// monitorOptions 以配置为基础，叠加命令行覆盖。
func monitorOptions(a *app.App) (monitor.Options, error) {
	opts, err := app.MonitorOptions(a.Config())
	if err != nil {
		return opts, err
	}
	if len(monStocks) > 0 {
		opts.Instruments = pickInstruments(monStocks, nil)
	}
	if monInterval != "" {
		d, ok := scheduler.ParseIntervalDuration(monInterval)
		if !ok {
			return opts, fmt.Errorf("invalid interval %q", monInterval)
		}
		opts.Interval = d
	}
	if monPolicy != "" {
		p, err := monitor.ParsePolicy(monPolicy)
		if err != nil {
			return opts, err
		}
		opts.Policy = p
	}
	return opts, nil
}

func runMonitorOnce(ctx context.Context, cmd *cobra.Command, a *app.App, opts monitor.Options) error {
	mon, err := a.NewMonitor(opts)
	if err != nil {
		return err
	}
	if err := mon.Load(ctx); err != nil {
		return err
	}
	report, err := mon.RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
