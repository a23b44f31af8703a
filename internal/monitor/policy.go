package monitor

import (
	"fmt"
	"strings"

	"quantsignal/internal/strategy"
)

// AlertPolicy decides which long signals become alerts.
type AlertPolicy string

const (
	// PolicyLevel alerts on every tick whose last signal is long.
	PolicyLevel AlertPolicy = "level"
	// PolicyEdge alerts only when a pair turns long; the first observation of a pair counts as a turn.
	PolicyEdge AlertPolicy = "edge"
)

func ParsePolicy(s string) (AlertPolicy, error) {
	switch p := AlertPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyLevel, nil
	case PolicyLevel, PolicyEdge:
		return p, nil
	default:
		return "", fmt.Errorf("unknown alert policy %q (want level or edge)", s)
	}
}

type pairKey struct {
	instrument string
	strategyID string
}

// signalMemory 记录每个 (品种, 策略) 上一次 tick 的最新信号，仅由循环协程访问。
type signalMemory map[pairKey]strategy.Signal

func (p AlertPolicy) alert(mem signalMemory, key pairKey, cur strategy.Signal) bool {
	prev, seen := mem[key]
	mem[key] = cur
	if cur != strategy.Long {
		return false
	}
	if p == PolicyEdge {
		return !seen || prev != strategy.Long
	}
	return true
}

// retain drops pairs whose strategy is no longer compiled.
func (mem signalMemory) retain(strategies []CompiledStrategy) {
	ids := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		ids[s.ID] = struct{}{}
	}
	for k := range mem {
		if _, ok := ids[k.strategyID]; !ok {
			delete(mem, k)
		}
	}
}
