package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quantsignal/internal/analysis/visual"
	"quantsignal/internal/app"
	"quantsignal/internal/backtest"
	"quantsignal/internal/pkg/symbol"
	"quantsignal/internal/strategy"
)

var (
	btStock    string
	btStrategy string
	btDescribe string
	btDays     int
	btChart    string
	btSave     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Interactively backtest a stored or generated strategy",
	Long: `Run one backtest over local history. Missing choices are asked for on the
terminal: pick a stored strategy by id or number, or describe a new one and let
the synthesizer write it.

Examples:
  quantsignal backtest
  quantsignal backtest --stock ETHUSDT --strategy a1b2c3d4 --days 180
  quantsignal backtest --stock BTCUSDT --describe "buy when RSI(14) < 30" --chart out/rsi.png`,
}

func init() {
	backtestCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runInteractiveBacktest)
	}
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().StringVar(&btStock, "stock", "", "instrument to backtest")
	backtestCmd.Flags().StringVar(&btStrategy, "strategy", "", "stored strategy id")
	backtestCmd.Flags().StringVar(&btDescribe, "describe", "", "generate a strategy from this description")
	backtestCmd.Flags().IntVar(&btDays, "days", 0, "trailing days to test (default: config backtest.days)")
	backtestCmd.Flags().StringVar(&btChart, "chart", "", "write an equity chart (.html or .png)")
	backtestCmd.Flags().BoolVar(&btSave, "save", false, "record the run in the results store")
}

type chosenStrategy struct {
	id          string
	name        string
	description string
	code        string
	compiled    *strategy.Compiled
	generated   bool
}

func runInteractiveBacktest(ctx context.Context, a *app.App) error {
	p := newPrompter(backtestCmd.InOrStdin(), backtestCmd.OutOrStdout())
	out := backtestCmd.OutOrStdout()

	inst := symbol.Normalize(btStock)
	if inst == "" {
		def := ""
		if list := a.Config().Data.Instruments; len(list) > 0 {
			def = list[0]
		}
		ans, err := p.ask("品种", def)
		if err != nil {
			return err
		}
		inst = symbol.Normalize(ans)
	}
	if !symbol.IsValid(inst) {
		return fmt.Errorf("invalid instrument %q", inst)
	}

	chosen, err := chooseStrategy(ctx, a, p)
	if err != nil {
		return err
	}
	days := btDays
	if days <= 0 {
		days = a.Config().Backtest.Days
	}

	res, err := a.Runner.RunBacktest(ctx, inst, chosen.name, chosen.compiled, days)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, backtest.RenderResultMarkdown(inst, chosen.name, res))

	if chosen.generated {
		ok, err := p.confirm("保存该策略到策略库?")
		if err != nil {
			return err
		}
		if ok {
			id, err := a.Strategies.Add(ctx, chosen.name, chosen.description, chosen.code)
			if err != nil {
				return err
			}
			chosen.id = id
			fmt.Fprintf(out, "✓ 策略已保存: %s\n", id)
		}
	}
	if btSave {
		rec, err := a.Runs.Record(ctx, inst, chosen.id, chosen.name, days, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ 回测已记录: %s\n", rec.ID)
	}
	if btChart != "" {
		if err := writeChart(ctx, btChart, inst+" "+chosen.name, res); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ 图表已写入: %s\n", btChart)
	}
	return nil
}

func chooseStrategy(ctx context.Context, a *app.App, p *prompter) (chosenStrategy, error) {
	if btDescribe != "" {
		return generateStrategy(ctx, a, btDescribe)
	}
	id := strings.TrimSpace(btStrategy)
	if id == "" {
		list, err := a.Strategies.List(ctx)
		if err != nil {
			return chosenStrategy{}, err
		}
		w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tID\tSTATUS\tNAME")
		for i, st := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, st.ID, st.Status, st.Name)
		}
		_ = w.Flush()
		ans, err := p.ask("选择策略编号/ID，或输入 g 用自然语言生成", "")
		if err != nil {
			return chosenStrategy{}, err
		}
		switch {
		case strings.EqualFold(ans, "g"):
			desc, err := p.ask("策略描述", "")
			if err != nil {
				return chosenStrategy{}, err
			}
			return generateStrategy(ctx, a, desc)
		case ans == "":
			return chosenStrategy{}, errors.New("no strategy selected")
		}
		if n, err := strconv.Atoi(ans); err == nil && n >= 1 && n <= len(list) {
			ans = list[n-1].ID
		}
		id = ans
	}
	st, ok, err := a.Strategies.Get(ctx, id)
	if err != nil {
		return chosenStrategy{}, err
	}
	if !ok {
		return chosenStrategy{}, fmt.Errorf("strategy %s not found", id)
	}
	compiled, err := strategy.Compile(st.Code)
	if err != nil {
		return chosenStrategy{}, err
	}
	return chosenStrategy{id: st.ID, name: st.Name, description: st.Description, code: st.Code, compiled: compiled}, nil
}

func generateStrategy(ctx context.Context, a *app.App, description string) (chosenStrategy, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return chosenStrategy{}, errors.New("empty strategy description")
	}
	code, err := a.Synth.Generate(ctx, description)
	if err != nil {
		return chosenStrategy{}, err
	}
	compiled, err := strategy.Compile(code)
	if err != nil {
		return chosenStrategy{}, err
	}
	return chosenStrategy{
		name:        compiled.Summary,
		description: description,
		code:        code,
		compiled:    compiled,
		generated:   true,
	}, nil
}

// writeChart 按扩展名输出 HTML 页面或 PNG 截图。
func writeChart(ctx context.Context, path, title string, res *backtest.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if strings.EqualFold(filepath.Ext(path), ".png") {
		img, err := visual.RenderEquityPNG(ctx, title, res)
		if err != nil {
			return err
		}
		return os.WriteFile(path, img.Bytes, 0o644)
	}
	var buf bytes.Buffer
	if err := visual.RenderEquityHTML(&buf, title, res); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
