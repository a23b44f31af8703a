package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/market"
)

var dayMs = day.Milliseconds()

func klineJSON(openMs int64, close float64) string {
	return fmt.Sprintf(`[%d,"%g","%g","%g","%g","100",%d,"0",1,"0","0","0"]`,
		openMs, close, close+1, close-1, close, openMs+dayMs-1)
}

func newTestSource(t *testing.T, h http.Handler, now time.Time) *Source {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := New(Config{RESTBaseURL: srv.URL, RateLimitPerSec: 1000, Burst: 10})
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestFetchHistoryPagesAndDropsOpenCandle(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(2*24*time.Hour + time.Hour) // day 3 still open
	var calls int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		atomic.AddInt32(&calls, 1)
		from, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		rows := []string{}
		for i := int64(0); i < 3; i++ {
			open := from + i*dayMs
			if open > start.UnixMilli()+2*dayMs {
				break
			}
			rows = append(rows, klineJSON(open, float64(10+i)))
		}
		fmt.Fprint(w, "["+strings.Join(rows, ",")+"]")
	})
	s := newTestSource(t, h, now)

	series, err := s.FetchHistory(context.Background(), "btc/usdt", start, start.Add(2*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2024-01-01", series[0].DayString())
	assert.Equal(t, 11.0, series[1].Close)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchHistoryUnknownSymbolIsAbsent(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	})
	s := newTestSource(t, h, time.Now())
	series, err := s.FetchHistory(context.Background(), "NOPEUSDT", time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	assert.Nil(t, series)
}

func TestFetchHistoryServerErrorIsFetchError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":-1000,"msg":"boom"}`)
	})
	s := newTestSource(t, h, time.Now())
	_, err := s.FetchHistory(context.Background(), "BTCUSDT", time.Now().AddDate(0, 0, -5), time.Now())
	var fe *market.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "BTCUSDT", fe.Instrument)
}

func TestFetchSnapshotSingleCall(t *testing.T) {
	closeMs := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC).UnixMilli()
	var calls int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/24hr", r.URL.Path)
		atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `[
			{"symbol":"BTCUSDT","lastPrice":"65000","openPrice":"64000","highPrice":"66000","lowPrice":"63000","volume":"10","closeTime":%d},
			{"symbol":"ETHUSDT","lastPrice":"0","openPrice":"1","highPrice":"1","lowPrice":"1","volume":"1","closeTime":%d},
			{"symbol":"SOLUSDT","lastPrice":"150","openPrice":"140","highPrice":"151","lowPrice":"139","volume":"5","closeTime":%d}
		]`, closeMs, closeMs, closeMs)
	})
	s := newTestSource(t, h, time.Now())

	snap, err := s.FetchSnapshot(context.Background(), []string{"BTCUSDT", "eth/usdt", "DOGEUSDT"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Len(t, snap, 1)
	btc := snap["BTCUSDT"]
	assert.Equal(t, 65000.0, btc.Close)
	assert.Equal(t, "2024-03-05", btc.DayString())
}

func TestListInstruments(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"ETHUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT"},
			{"symbol":"BTCUSDT_240628","status":"TRADING","contractType":"CURRENT_QUARTER","quoteAsset":"USDT"},
			{"symbol":"LUNAUSDT","status":"SETTLING","contractType":"PERPETUAL","quoteAsset":"USDT"},
			{"symbol":"BTCUSDC","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDC"}
		]}`)
	})
	s := newTestSource(t, h, time.Now())
	got, err := s.ListInstruments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
}
