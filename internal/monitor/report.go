package monitor

import (
	"errors"
	"sync/atomic"
	"time"

	"quantsignal/internal/alert"
	"quantsignal/internal/market"
	"quantsignal/internal/strategy"
)

// State 是一次 tick 所处的阶段。
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateMerging
	StateEvaluating
	StateAggregating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateEvaluating:
		return "evaluating"
	case StateAggregating:
		return "aggregating"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type atomicState struct{ v atomic.Int32 }

func (a *atomicState) Load() State   { return State(a.v.Load()) }
func (a *atomicState) Store(s State) { a.v.Store(int32(s)) }

// InstrumentStatus says what happened to an instrument during the merge phase.
type InstrumentStatus string

const (
	InstrumentMerged   InstrumentStatus = "merged"
	InstrumentStale    InstrumentStatus = "stale"
	InstrumentNoQuote  InstrumentStatus = "no_quote"
	InstrumentNoWindow InstrumentStatus = "no_window"
)

type InstrumentResult struct {
	Instrument string           `json:"instrument"`
	Status     InstrumentStatus `json:"status"`
	Outcome    string           `json:"outcome,omitempty"`
	Price      float64          `json:"price,omitempty"`
	Bars       int              `json:"bars,omitempty"`
}

// PairResult 是一个 (品种, 策略) 的评估结果；失败只影响自身。
type PairResult struct {
	Instrument string          `json:"instrument"`
	StrategyID string          `json:"strategy_id"`
	Name       string          `json:"name"`
	Signal     strategy.Signal `json:"signal"`
	Alert      bool            `json:"alert"`
	Err        error           `json:"-"`
	Error      string          `json:"error,omitempty"`
}

func (p PairResult) OK() bool { return p.Err == nil }

// FailureKind classifies Err for metrics.
func (p PairResult) FailureKind() string {
	var rt *strategy.RuntimeError
	switch {
	case p.Err == nil:
		return ""
	case errors.As(p.Err, &rt):
		return "runtime"
	default:
		return "other"
	}
}

// TickReport 汇总一次 tick 的全部结果。
type TickReport struct {
	TickID        string               `json:"tick_id"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Skipped       string               `json:"skipped,omitempty"`
	FetchError    string               `json:"fetch_error,omitempty"`
	Instruments   []InstrumentResult   `json:"instruments"`
	Pairs         []PairResult         `json:"pairs"`
	Alerts        []alert.Alert        `json:"alerts"`
	Dispatch      alert.DispatchResult `json:"dispatch"`
	DispatchError string               `json:"dispatch_error,omitempty"`
}

func (r *TickReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func (r *TickReport) Failures() []PairResult {
	var out []PairResult
	for _, p := range r.Pairs {
		if !p.OK() {
			out = append(out, p)
		}
	}
	return out
}

func (r *TickReport) instrument(inst string, status InstrumentStatus) *InstrumentResult {
	r.Instruments = append(r.Instruments, InstrumentResult{Instrument: inst, Status: status})
	return &r.Instruments[len(r.Instruments)-1]
}

func (r *TickReport) merged(inst string, outcome market.MergeOutcome, window market.Series, live market.Bar) {
	status := InstrumentMerged
	if outcome == market.Stale {
		status = InstrumentStale
	}
	res := r.instrument(inst, status)
	res.Outcome = outcome.String()
	res.Bars = len(window)
	res.Price = live.Close
}
