package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/strategy"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Available() bool {
	return m.Called().Bool(0)
}

func (m *MockNotifier) Send(ctx context.Context, title, body string) error {
	return m.Called(ctx, title, body).Error(0)
}

func sampleBatch() Batch {
	at := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	return Batch{
		TickID:      "t1",
		GeneratedAt: at,
		Alerts: []Alert{
			{Instrument: "ETHUSDT", Price: 3500.5, StrategyID: "b2", StrategyName: "rsi", Signal: strategy.Long, Timestamp: at},
			{Instrument: "BTCUSDT", Price: 65000, StrategyID: "a1", StrategyName: "sma", Signal: strategy.Long, Timestamp: at},
		},
	}
}

func TestDispatchEmptyBatchIsSilent(t *testing.T) {
	var buf bytes.Buffer
	n := new(MockNotifier)
	agg := NewAggregator(&buf, n)

	res, err := agg.Dispatch(context.Background(), Batch{})
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{}, res)
	assert.Empty(t, buf.String())
	n.AssertNotCalled(t, "Available")
	n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchConsoleOnlyWhenNotifierUnavailable(t *testing.T) {
	var buf bytes.Buffer
	n := new(MockNotifier)
	n.On("Available").Return(false)
	agg := NewAggregator(&buf, n)

	res, err := agg.Dispatch(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.True(t, res.Console)
	assert.False(t, res.Notified)
	assert.Equal(t, 2, res.Alerts)

	out := buf.String()
	assert.Contains(t, out, "=== 2 signal(s) @ 2024-03-04 09:30:00 ===")
	assert.Less(t, strings.Index(out, "BTCUSDT"), strings.Index(out, "ETHUSDT"))
	assert.Contains(t, out, "65000.00")
	assert.Contains(t, out, "3500.5000")
	n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchNotifies(t *testing.T) {
	var buf bytes.Buffer
	n := new(MockNotifier)
	n.On("Available").Return(true)
	n.On("Send", mock.Anything, alertTitle, mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "2 buy signal(s)") && strings.Contains(body, "BTCUSDT") && strings.Contains(body, "tick t1")
	})).Return(nil).Once()

	res, err := NewAggregator(&buf, n).Dispatch(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.True(t, res.Console)
	assert.True(t, res.Notified)
	n.AssertExpectations(t)
}

func TestDispatchNotifyFailureKeepsConsole(t *testing.T) {
	var buf bytes.Buffer
	n := new(MockNotifier)
	n.On("Available").Return(true)
	n.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("offline"))

	res, err := NewAggregator(&buf, n).Dispatch(context.Background(), sampleBatch())
	assert.ErrorContains(t, err, "offline")
	assert.True(t, res.Console)
	assert.False(t, res.Notified)
	assert.NotEmpty(t, buf.String())
}

func TestDispatchWithoutNotifier(t *testing.T) {
	var buf bytes.Buffer
	res, err := NewAggregator(&buf, nil).Dispatch(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.True(t, res.Console)
	assert.False(t, res.Notified)
}

func TestDispatchSplitsLargeBatch(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	batch := Batch{TickID: "t80", GeneratedAt: at}
	for i := 0; i < 80; i++ {
		batch.Alerts = append(batch.Alerts, Alert{
			Instrument:   fmt.Sprintf("COIN%02dUSDT", i),
			Price:        1234.5678,
			StrategyID:   "abcd1234",
			StrategyName: "sma_cross_10_30",
			Signal:       strategy.Long,
			Timestamp:    at,
		})
	}

	var bodies []string
	n := new(MockNotifier)
	n.On("Available").Return(true)
	n.On("Send", mock.Anything, alertTitle, mock.Anything).Run(func(args mock.Arguments) {
		bodies = append(bodies, args.String(2))
	}).Return(nil)

	res, err := NewAggregator(&bytes.Buffer{}, n).Dispatch(context.Background(), batch)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	require.Greater(t, len(bodies), 1)
	assert.Equal(t, len(bodies), res.Messages)

	joined := strings.Join(bodies, "\n")
	for _, al := range batch.Alerts {
		assert.Equal(t, 1, strings.Count(joined, al.Instrument+" "), al.Instrument)
	}
	for i, body := range bodies {
		assert.LessOrEqual(t, len(body), 3800)
		assert.Zero(t, strings.Count(body, "```")%2, "unbalanced fence in message %d", i)
		assert.Contains(t, body, fmt.Sprintf("(%d/%d)", i+1, len(bodies)))
		assert.Contains(t, body, "tick t80")
	}
}

func TestBatchInstruments(t *testing.T) {
	b := sampleBatch()
	b.Alerts = append(b.Alerts, Alert{Instrument: "BTCUSDT", StrategyName: "ema"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, b.Instruments())
	sorted := b.Sorted()
	assert.Equal(t, "ema", sorted[0].StrategyName)
	assert.Equal(t, "sma", sorted[1].StrategyName)
}
