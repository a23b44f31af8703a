// Package visual 把回测结果渲染成 echarts 页面，必要时借助 headless Chrome 截图成 PNG。
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"quantsignal/internal/analysis/indicator"
	"quantsignal/internal/backtest"
)

var ErrEmptyResult = errors.New("backtest result has no rows to chart")

type ImageResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"base64"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#34d399"
	colorBenchmark     = "#3b82f6"
	colorTrend         = "#fbbf24"
	colorDrawdown      = "#f87171"

	chartWidthPx     = 1600
	equityHeightPx   = 560
	drawdownHeightPx = 260

	// 权益曲线上叠加的均线周期
	trendPeriod = 20
)

// Names of the rendered series; tests and the HTTP layer look them up.
const (
	SeriesEquity    = "Strategy equity"
	SeriesBenchmark = "Buy & hold"
	SeriesTrend     = "Equity SMA20"
	SeriesDrawdown  = "Drawdown"
)

// RenderEquityHTML writes a standalone page with the equity curve (against
// buy-and-hold of the same capital) and the drawdown below it.
func RenderEquityHTML(w io.Writer, title string, res *backtest.Result) error {
	if res == nil || len(res.Frame) == 0 {
		return ErrEmptyResult
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = title

	xAxis := buildXAxis(res.Frame)
	page.AddCharts(buildEquityChart(title, xAxis, res), buildDrawdownChart(xAxis, res.Frame))
	return page.Render(w)
}

// RenderEquityPNG renders the same page and screenshots it.
func RenderEquityPNG(ctx context.Context, title string, res *backtest.Result) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return ImageResult{}, fmt.Errorf("headless chrome unavailable: %w", err)
	}
	var buf bytes.Buffer
	if err := RenderEquityHTML(&buf, title, res); err != nil {
		return ImageResult{}, err
	}
	png, err := renderHTMLToPNG(ctx, buf.Bytes(), chartWidthPx, equityHeightPx+drawdownHeightPx+80)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{
		Bytes:       png,
		Base64:      base64.StdEncoding.EncodeToString(png),
		Filename:    fileName(title) + ".png",
		Description: describe(title, res.Stats),
	}, nil
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func buildEquityChart(title string, xAxis []string, res *backtest.Result) *charts.Line {
	rows := res.Frame
	equity := make([]float64, len(rows))
	bench := make([]float64, len(rows))
	capital := res.Options.Capital
	if capital <= 0 {
		capital = backtest.DefaultCapital
	}
	first := rows[0].Close
	for i, r := range rows {
		equity[i] = r.Equity
		if first > 0 {
			bench[i] = capital * r.Close / first
		} else {
			bench[i] = math.NaN()
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      describe("", res.Stats),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(xAxis)
	line.AddSeries(SeriesEquity, toLineData(equity, len(rows), 2), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries(SeriesBenchmark, toLineData(bench, len(rows), 2), charts.WithLineStyleOpts(opts.LineStyle{Color: colorBenchmark, Width: 1}))
	line.AddSeries(SeriesTrend, toLineData(indicator.SMA(equity, trendPeriod), len(rows), 2), charts.WithLineStyleOpts(opts.LineStyle{Color: colorTrend, Width: 1, Type: "dashed"}))
	return line
}

func buildDrawdownChart(xAxis []string, rows []backtest.Row) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", drawdownHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: SeriesDrawdown, Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary, Formatter: "{value}%"},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	dd := make([]float64, len(rows))
	for i, r := range rows {
		dd[i] = r.Drawdown * 100
	}
	line.SetXAxis(xAxis)
	line.AddSeries(SeriesDrawdown, toLineData(dd, len(rows), 2),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 1}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorDrawdown, Opacity: opts.Float(0.3)}),
	)
	return line
}

func buildXAxis(rows []backtest.Row) []string {
	x := make([]string, len(rows))
	for i, r := range rows {
		x[i] = r.Date.UTC().Format(time.DateOnly)
	}
	return x
}

func describe(title string, st backtest.Stats) string {
	s := fmt.Sprintf("total %s | annual %s | sharpe %s | max dd %s | trades %d",
		backtest.Pct(st.TotalReturn), backtest.Pct(st.AnnualReturn), backtest.Num(st.SharpeRatio), backtest.Pct(st.MaxDrawdown), st.Trades)
	if title == "" {
		return s
	}
	return title + " | " + s
}

func fileName(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "equity"
	}
	return name + "_equity"
}

// toLineData 右对齐 series 到 length，缺失与 NaN 输出空点。
func toLineData(series []float64, length, decimals int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) || math.IsInf(val, 0) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, decimals)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 100),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
