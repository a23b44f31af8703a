package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"quantsignal/internal/gateway/notifier"
)

const alertTitle = "Strategy signals"

// DispatchResult 记录一次分发的去向。
type DispatchResult struct {
	Alerts   int
	Console  bool
	Notified bool
	Messages int
}

// Aggregator 把一个 tick 的告警渲染到控制台，并在通知通道可用时推送。
type Aggregator struct {
	Console  io.Writer
	Notifier notifier.Notifier
	Now      func() time.Time
}

func NewAggregator(console io.Writer, n notifier.Notifier) *Aggregator {
	if console == nil {
		console = os.Stdout
	}
	return &Aggregator{Console: console, Notifier: n, Now: time.Now}
}

// Dispatch renders the batch to the console and forwards it to the notifier when one is available.
// Large batches are split over several messages so no alert row is dropped.
// An empty batch produces no output at all. Notification errors are returned after the console
// rendering has already happened.
func (a *Aggregator) Dispatch(ctx context.Context, batch Batch) (DispatchResult, error) {
	res := DispatchResult{Alerts: batch.Len()}
	if batch.Empty() {
		return res, nil
	}
	alerts := batch.Sorted()
	at := batch.GeneratedAt
	if at.IsZero() {
		at = a.now()
	}
	if a.Console != nil {
		if err := writeConsole(a.Console, at, alerts); err != nil {
			return res, fmt.Errorf("render alerts: %w", err)
		}
		res.Console = true
	}
	if a.Notifier == nil || !a.Notifier.Available() {
		return res, nil
	}
	pages := Message(batch.TickID, at, alerts).RenderPages()
	for i, body := range pages {
		if err := a.Notifier.Send(ctx, alertTitle, body); err != nil {
			return res, fmt.Errorf("notify alerts (message %d/%d): %w", i+1, len(pages), err)
		}
		res.Messages++
	}
	res.Notified = true
	return res, nil
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

var alertHeader = []string{"instrument", "price", "strategy", "id", "signal"}

func alertRow(al Alert) []string {
	return []string{al.Instrument, formatPrice(al.Price), al.StrategyName, al.StrategyID, al.Signal.String()}
}

func writeConsole(w io.Writer, at time.Time, alerts []Alert) error {
	if _, err := fmt.Fprintf(w, "=== %d signal(s) @ %s ===\n", len(alerts), at.Format("2006-01-02 15:04:05")); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(alertHeader, "\t")))
	for _, al := range alerts {
		fmt.Fprintln(tw, strings.Join(alertRow(al), "\t"))
	}
	return tw.Flush()
}

// Message builds the structured notification for a set of alerts.
func Message(tickID string, at time.Time, alerts []Alert) notifier.StructuredMessage {
	rows := make([][]string, 0, len(alerts))
	for _, al := range alerts {
		rows = append(rows, alertRow(al))
	}
	msg := notifier.StructuredMessage{
		Icon:      "📈",
		Title:     fmt.Sprintf("%d buy signal(s)", len(alerts)),
		Header:    alertHeader,
		Rows:      rows,
		Timestamp: at,
	}
	if tickID != "" {
		msg.Footer = "tick " + tickID
	}
	return msg
}

func formatPrice(p float64) string {
	d := decimal.NewFromFloat(p)
	switch {
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return d.StringFixed(2)
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.StringFixed(4)
	default:
		return strconv.FormatFloat(p, 'g', 6, 64)
	}
}
