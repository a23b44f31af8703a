package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	// RateLimitPerSec/Burst 限制对 REST 的请求速率（分页拉取历史时尤为重要）。
	RateLimitPerSec float64
	Burst           int

	ProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.RateLimitPerSec <= 0 {
		out.RateLimitPerSec = 5
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	return out
}
