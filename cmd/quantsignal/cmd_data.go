package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"quantsignal/internal/app"
	"quantsignal/internal/market"
)

var (
	dataStocks []string
	dataAll    bool
	dataDays   int
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download or refresh local daily history",
	Long: `Fetch daily bars from the exchange and append them to the local archive.
Only the gap after the last stored day is fetched again.

Examples:
  quantsignal data                          # configured instruments
  quantsignal data --stocks BTCUSDT --days 90
  quantsignal data --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			instruments := pickInstruments(dataStocks, a.Config().Data.Instruments)
			if dataAll {
				all, err := a.AllInstruments(ctx)
				if err != nil {
					return err
				}
				instruments = all
			}
			results, err := a.UpdateData(ctx, instruments, dataDays)
			if err != nil {
				return err
			}
			printUpdateResults(cmd, results)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.Flags().StringSliceVar(&dataStocks, "stocks", nil, "instruments to update (default: config data.instruments)")
	dataCmd.Flags().BoolVar(&dataAll, "all", false, "update every perpetual listed on the exchange")
	dataCmd.Flags().IntVar(&dataDays, "days", 0, "history depth in days (default: config data.history_days)")
}

func printUpdateResults(cmd *cobra.Command, results []market.UpdateResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTRUMENT\tSTATUS\tFROM\tSAVED\tLAST DAY\tERROR")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", r.Instrument, r.Status, day(r.From), r.Saved, day(r.LastDay), errText)
	}
	_ = w.Flush()
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
