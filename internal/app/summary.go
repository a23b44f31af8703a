package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"quantsignal/internal/monitor"
)

// StartupSummary 启动时打印的配置摘要。
type StartupSummary struct {
	Instruments []string
	Interval    time.Duration
	Lookback    int
	Policy      monitor.AlertPolicy
	Active      int
	Total       int
	History     []string
	Notify      bool
	Synth       string
	HTTPAddr    string
}

// Summary collects what the monitor is about to run with. Store errors are
// reported inline instead of failing startup.
func (a *App) Summary(mon *monitor.Monitor) *StartupSummary {
	opts := mon.Options()
	s := &StartupSummary{
		Instruments: opts.Instruments,
		Interval:    opts.Interval,
		Lookback:    opts.Lookback,
		Policy:      opts.Policy,
		Notify:      a.Notifier != nil && a.Notifier.Available(),
		Synth:       "disabled",
		HTTPAddr:    a.cfg.App.HTTPAddr,
	}
	if a.Synth != nil && a.Synth.Enabled() {
		s.Synth = a.Synth.Model()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if list, err := a.Strategies.List(ctx); err == nil {
		s.Total = len(list)
		for _, st := range list {
			if st.Active() {
				s.Active++
			}
		}
	} else {
		s.Total = -1
	}
	for _, inst := range opts.Instruments {
		m, err := a.History.Manifest(ctx, inst)
		switch {
		case err != nil:
			s.History = append(s.History, fmt.Sprintf("%s: error %v", inst, err))
		case m.Rows == 0:
			s.History = append(s.History, fmt.Sprintf("%s: no local history", inst))
		default:
			s.History = append(s.History, fmt.Sprintf("%s: %d bars, %s ~ %s", inst, m.Rows,
				m.FirstDay.Format(time.DateOnly), m.LastDay.Format(time.DateOnly)))
		}
	}
	return s
}

func (s *StartupSummary) Print(w io.Writer) {
	if s == nil || w == nil {
		return
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "  监控品种: %s\n", formatList(s.Instruments))
	fmt.Fprintf(w, "  轮询间隔: %s  窗口: %d  告警策略: %s\n", s.Interval, s.Lookback, s.Policy)
	if s.Total < 0 {
		fmt.Fprintln(w, "  策略: (读取失败)")
	} else {
		fmt.Fprintf(w, "  策略: %d 个启用 / %d 个总计\n", s.Active, s.Total)
	}
	fmt.Fprintf(w, "  通知: %v  策略生成: %s\n", s.Notify, s.Synth)
	if s.HTTPAddr != "" {
		fmt.Fprintf(w, "  HTTP: %s\n", s.HTTPAddr)
	}
	fmt.Fprintln(w, "  [本地历史]")
	for _, line := range s.History {
		fmt.Fprintf(w, "    - %s\n", line)
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
