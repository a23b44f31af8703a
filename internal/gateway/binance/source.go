package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"quantsignal/internal/logger"
	"quantsignal/internal/market"
	"quantsignal/internal/pkg/symbol"
)

const (
	maxHistoryLimit = 1500
	dailyInterval   = "1d"
	day             = 24 * time.Hour

	codeInvalidSymbol = -1121
)

// Source 基于 go-binance U 本位合约接口提供日线历史与批量行情快照。
type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(final.RateLimitPerSec), final.Burst),
		now:     time.Now,
	}, nil
}

// FetchHistory pages daily klines for [start, end]. The still-open candle of the
// current day is dropped. An unknown symbol yields (nil, nil).
func (s *Source) FetchHistory(ctx context.Context, instrument string, start, end time.Time) (market.Series, error) {
	inst := symbol.Normalize(instrument)
	if inst == "" {
		return nil, &market.FetchError{Op: "history", Instrument: instrument, Err: errors.New("instrument is required or malformed")}
	}
	start, end = market.DayOf(start), market.DayOf(end).Add(day-time.Millisecond)
	if end.Before(start) {
		return nil, nil
	}
	nowMs := s.now().UnixMilli()
	var out market.Series
	cursor := start.UnixMilli()
	for cursor <= end.UnixMilli() {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &market.FetchError{Op: "history", Instrument: inst, Err: err}
		}
		kls, err := s.client.NewKlinesService().
			Symbol(inst).
			Interval(dailyInterval).
			StartTime(cursor).
			EndTime(end.UnixMilli()).
			Limit(maxHistoryLimit).
			Do(ctx)
		if err != nil {
			if isInvalidSymbol(err) {
				logger.Warnf("binance: unknown instrument %s", inst)
				return nil, nil
			}
			return nil, &market.FetchError{Op: "history", Instrument: inst, Err: err}
		}
		if len(kls) == 0 {
			break
		}
		for _, kl := range kls {
			if kl == nil || kl.CloseTime >= nowMs {
				continue
			}
			out = append(out, klineBar(kl))
		}
		cursor = kls[len(kls)-1].OpenTime + day.Milliseconds()
		if len(kls) < maxHistoryLimit {
			break
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return dedupe(out), nil
}

// FetchSnapshot issues a single 24h ticker request for all symbols and keeps
// the requested ones. Instruments without a positive last price are omitted.
func (s *Source) FetchSnapshot(ctx context.Context, instruments []string) (map[string]market.Bar, error) {
	want := make(map[string]struct{}, len(instruments))
	for _, inst := range instruments {
		if norm := symbol.Normalize(inst); norm != "" {
			want[norm] = struct{}{}
		}
	}
	out := make(map[string]market.Bar, len(want))
	if len(want) == 0 {
		return out, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &market.FetchError{Op: "snapshot", Err: err}
	}
	stats, err := s.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, &market.FetchError{Op: "snapshot", Err: err}
	}
	for _, st := range stats {
		if st == nil {
			continue
		}
		inst := strings.ToUpper(st.Symbol)
		if _, ok := want[inst]; !ok {
			continue
		}
		bar, ok := tickerBar(st)
		if !ok {
			continue
		}
		out[inst] = bar
	}
	if missing := len(want) - len(out); missing > 0 {
		logger.Debugf("binance snapshot: %d of %d instruments without quote", missing, len(want))
	}
	return out, nil
}

// ListInstruments returns every trading USDT perpetual symbol, sorted.
func (s *Source) ListInstruments(ctx context.Context) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &market.FetchError{Op: "instruments", Err: err}
	}
	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, &market.FetchError{Op: "instruments", Err: err}
	}
	out := make([]string, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.Status != "TRADING" || sym.QuoteAsset != "USDT" || string(sym.ContractType) != "PERPETUAL" {
			continue
		}
		out = append(out, strings.ToUpper(sym.Symbol))
	}
	sort.Strings(out)
	return out, nil
}

func klineBar(kl *futures.Kline) market.Bar {
	return market.Bar{
		Date:   market.DayOf(time.UnixMilli(kl.OpenTime)),
		Open:   parseFloat(kl.Open),
		High:   parseFloat(kl.High),
		Low:    parseFloat(kl.Low),
		Close:  parseFloat(kl.Close),
		Volume: parseFloat(kl.Volume),
	}
}

// tickerBar maps the rolling 24h ticker onto the bar of the day the ticker was taken.
func tickerBar(st *futures.PriceChangeStats) (market.Bar, bool) {
	last := parseFloat(st.LastPrice)
	if last <= 0 {
		return market.Bar{}, false
	}
	bar := market.Bar{
		Date:   market.DayOf(time.UnixMilli(st.CloseTime)),
		Open:   parseFloat(st.OpenPrice),
		High:   parseFloat(st.HighPrice),
		Low:    parseFloat(st.LowPrice),
		Close:  last,
		Volume: parseFloat(st.Volume),
	}
	if bar.Open <= 0 {
		bar.Open = last
	}
	if bar.High < last {
		bar.High = last
	}
	if bar.Low <= 0 || bar.Low > last {
		bar.Low = last
	}
	return bar, true
}

func dedupe(bars market.Series) market.Series {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Day().Equal(b.Day()) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func isInvalidSymbol(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
