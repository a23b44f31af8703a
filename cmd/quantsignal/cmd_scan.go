package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"quantsignal/internal/app"
	"quantsignal/internal/backtest"
	"quantsignal/internal/logger"
	"quantsignal/internal/strategy"
)

var (
	scanStocks   []string
	scanStrategy string
	scanDays     int
	scanOutput   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Backtest one strategy across many instruments and list long signals",
	Long: `Run a stored strategy over every instrument and write a markdown report of
the instruments whose latest signal is long.

Examples:
  quantsignal scan --strategy a1b2c3d4
  quantsignal scan --strategy a1b2c3d4 --stocks BTCUSDT,ETHUSDT --days 120 --output out/scan.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, ok, err := a.Strategies.Get(ctx, scanStrategy)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("strategy %s not found", scanStrategy)
			}
			chosen, err := strategy.Compile(st.Code)
			if err != nil {
				return err
			}
			days := scanDays
			if days <= 0 {
				days = a.Config().Backtest.ScanDays
			}
			instruments := pickInstruments(scanStocks, a.Config().Data.Instruments)
			report, err := a.Runner.Scan(ctx, instruments, st.Name, chosen.Summary, chosen, days)
			if err != nil {
				return err
			}
			md := backtest.RenderMarkdown(report)
			fmt.Fprintln(cmd.OutOrStdout(), md)

			path := scanOutput
			if path == "" {
				path = filepath.Join(a.Config().Backtest.ReportDir, fmt.Sprintf("scan_%s_%s.md", st.ID, report.GeneratedAt.Format("20060102_150405")))
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
				return err
			}
			logger.Infof("[scan] %d/%d 命中，报告: %s (%s)", len(report.Hits()), len(report.Items), path, time.Since(report.GeneratedAt).Round(time.Millisecond))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanStrategy, "strategy", "", "stored strategy id")
	scanCmd.Flags().StringSliceVar(&scanStocks, "stocks", nil, "instruments to scan (default: config data.instruments)")
	scanCmd.Flags().IntVar(&scanDays, "days", 0, "trailing days per instrument (default: config backtest.scan_days)")
	scanCmd.Flags().StringVar(&scanOutput, "output", "", "report path (default: backtest.report_dir)")
	_ = scanCmd.MarkFlagRequired("strategy")
}
