package market

import (
	"sort"
	"strings"
	"sync"
)

const defaultShardCount = 16

// WindowCache holds the bounded evaluation window per instrument. Values are
// copied on the way in and on the way out.
type WindowCache struct {
	lookback int
	shards   []windowShard
}

type windowShard struct {
	mu   sync.RWMutex
	data map[string]Series
}

func NewWindowCache(lookback int) *WindowCache {
	if lookback <= 0 {
		lookback = 100
	}
	c := &WindowCache{lookback: lookback, shards: make([]windowShard, defaultShardCount)}
	for i := range c.shards {
		c.shards[i] = windowShard{data: make(map[string]Series)}
	}
	return c
}

func (c *WindowCache) Lookback() int { return c.lookback }

func (c *WindowCache) shardFor(instrument string) *windowShard {
	return &c.shards[hashKey(instrument)%uint32(len(c.shards))]
}

// Put stores a copy of the last lookback bars. An empty series removes the entry.
func (c *WindowCache) Put(instrument string, s Series) {
	instrument = normalizeInstrument(instrument)
	if instrument == "" {
		return
	}
	sh := c.shardFor(instrument)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(s) == 0 {
		delete(sh.data, instrument)
		return
	}
	sh.data[instrument] = s.Tail(c.lookback)
}

func (c *WindowCache) Get(instrument string) (Series, bool) {
	instrument = normalizeInstrument(instrument)
	sh := c.shardFor(instrument)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.data[instrument]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (c *WindowCache) Instruments() []string {
	var out []string
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		for k := range sh.data {
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (c *WindowCache) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

func normalizeInstrument(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// fnv-1a
func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
