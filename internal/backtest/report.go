package backtest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Pct formats a fraction as a percentage with two decimals.
func Pct(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

// Num formats a ratio with two decimals.
func Num(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Money formats an amount with two decimals.
func Money(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

// RenderResultMarkdown renders a single backtest as a markdown block.
func RenderResultMarkdown(instrument, strategyName string, res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s · %s\n\n", instrument, strategyName)
	if res == nil {
		b.WriteString("_no result_\n")
		return b.String()
	}
	s := res.Stats
	b.WriteString("| metric | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| total return | %s |\n", Pct(s.TotalReturn))
	fmt.Fprintf(&b, "| annual return | %s |\n", Pct(s.AnnualReturn))
	fmt.Fprintf(&b, "| volatility | %s |\n", Pct(s.Volatility))
	fmt.Fprintf(&b, "| sharpe | %s |\n", Num(s.SharpeRatio))
	fmt.Fprintf(&b, "| max drawdown | %s |\n", Pct(s.MaxDrawdown))
	fmt.Fprintf(&b, "| win rate | %s |\n", Pct(s.WinRate))
	fmt.Fprintf(&b, "| trades | %d |\n", s.Trades)
	fmt.Fprintf(&b, "| bars | %d |\n", s.Bars)
	fmt.Fprintf(&b, "| final equity | %s |\n", Money(s.FinalEquity))
	fmt.Fprintf(&b, "| last signal | %s |\n", s.LastSignal)
	return b.String()
}

// RenderMarkdown renders the scan report: header, strategy summary, hit
// table and a failure list.
func RenderMarkdown(r *ScanReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scan report %s\n\n", r.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Strategy:** %s\n\n", r.Strategy)
	if r.Summary != "" {
		fmt.Fprintf(&b, "**Logic:** `%s`\n\n", r.Summary)
	}
	hits := r.Hits()
	fmt.Fprintf(&b, "Scanned %d instruments over %d days, %d with a long signal on the last bar.\n\n",
		len(r.Items), r.Days, len(hits))
	if len(hits) > 0 {
		b.WriteString("| instrument | close | total | annual | sharpe | max dd | win rate |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, h := range hits {
			s := h.Result.Stats
			last := 0.0
			if n := len(h.Result.Frame); n > 0 {
				last = h.Result.Frame[n-1].Close
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
				h.Instrument, decimal.NewFromFloat(last).String(), Pct(s.TotalReturn), Pct(s.AnnualReturn),
				Num(s.SharpeRatio), Pct(s.MaxDrawdown), Pct(s.WinRate))
		}
		b.WriteString("\n")
	}
	if fails := r.Failures(); len(fails) > 0 {
		b.WriteString("Skipped:\n")
		for _, f := range fails {
			fmt.Fprintf(&b, "- %s: %v\n", f.Instrument, f.Err)
		}
	}
	return b.String()
}
