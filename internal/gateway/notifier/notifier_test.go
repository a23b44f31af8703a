package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredMessageRenderMarkdown(t *testing.T) {
	msg := StructuredMessage{
		Icon:   "🔔",
		Title:  "Signals",
		Header: []string{"instrument", "price"},
		Rows:   [][]string{{"BTCUSDT", "65000"}, {"ETHUSDT", "3500.5"}},
		Sections: []MessageSection{
			{Title: "notes", Lines: []string{"  ", "a ```b```"}},
		},
		Footer:    "done",
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "🔔 Signals\n\n```\ninstrument  price\nBTCUSDT     65000\n"))
	assert.Contains(t, out, "- a '''b'''")
	assert.Contains(t, out, "done\ntime: 2024-05-01 08:00:00 UTC")
}

func TestRenderMarkdownKeepsFenceClosedWhenTruncating(t *testing.T) {
	msg := StructuredMessage{Title: "Signals", Header: []string{"instrument", "note"}}
	for i := 0; i < 120; i++ {
		msg.Rows = append(msg.Rows, []string{fmt.Sprintf("COIN%03dUSDT", i), strings.Repeat("x", 30)})
	}
	out := msg.RenderMarkdown()
	assert.LessOrEqual(t, len(out), maxStructuredMessageLen)
	assert.Equal(t, 2, strings.Count(out, "```"))
	kept := strings.Count(out, "USDT")
	assert.Contains(t, out, fmt.Sprintf("... +%d more\n```", 120-kept))

	pages := msg.RenderPages()
	require.Greater(t, len(pages), 1)
	total := 0
	for _, p := range pages {
		assert.LessOrEqual(t, len(p), maxStructuredMessageLen)
		assert.Equal(t, 2, strings.Count(p, "```"))
		assert.Contains(t, p, "instrument")
		assert.NotContains(t, p, "more")
		total += strings.Count(p, "USDT")
	}
	assert.Equal(t, 120, total)
}

func TestRenderPagesSingleWhenShort(t *testing.T) {
	msg := StructuredMessage{Title: "Signals", Rows: [][]string{{"BTCUSDT"}}}
	assert.Equal(t, []string{msg.RenderMarkdown()}, msg.RenderPages())
}

func TestRenderTableEmpty(t *testing.T) {
	assert.Equal(t, "", StructuredMessage{Header: []string{"a"}}.RenderTable())
}

type fakeBotServer struct {
	mu    sync.Mutex
	texts []string
	fail  int
}

func (f *fakeBotServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"qs","username":"qs_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.fail > 0 {
				f.fail--
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"boom"}`))
				return
			}
			f.texts = append(f.texts, r.FormValue("text"))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	})
}

func TestTelegramSend(t *testing.T) {
	fake := &fakeBotServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tg, err := NewTelegram("TOKEN", "42", WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.True(t, tg.Available())

	require.NoError(t, tg.Send(context.Background(), "Alerts", "body"))
	require.Len(t, fake.texts, 1)
	assert.Equal(t, "*Alerts*\n\nbody", fake.texts[0])
}

func TestTelegramRetries(t *testing.T) {
	fake := &fakeBotServer{fail: 1}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tg, err := NewTelegram("TOKEN", "42", WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.NoError(t, tg.Send(context.Background(), "", "retry me"))
	assert.Equal(t, []string{"retry me"}, fake.texts)
}

func TestNewTelegramValidates(t *testing.T) {
	_, err := NewTelegram("", "1")
	assert.Error(t, err)
	_, err = NewTelegram("x", "not-a-number")
	assert.Error(t, err)
}

type stubNotifier struct {
	available bool
	err       error
	sent      int
}

func (s *stubNotifier) Available() bool { return s.available }
func (s *stubNotifier) Send(context.Context, string, string) error {
	s.sent++
	return s.err
}

func TestMultiSkipsUnavailable(t *testing.T) {
	off := &stubNotifier{}
	on := &stubNotifier{available: true}
	broken := &stubNotifier{available: true, err: errors.New("down")}

	m := Multi{off, on, broken}
	assert.True(t, m.Available())
	err := m.Send(context.Background(), "t", "b")
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 0, off.sent)
	assert.Equal(t, 1, on.sent)

	assert.False(t, Multi{off}.Available())
}
