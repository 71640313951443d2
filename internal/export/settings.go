package export

import (
	"strings"
	"time"
)

const (
	DefaultBatchSize      = 50
	DefaultHistoricalBars = 1000
	DefaultRetryLimit     = 3
	DefaultTimeoutSeconds = 60
)

// Settings 每个 tick 传入的配置快照
type Settings struct {
	Endpoint       string
	Enabled        bool
	Mode           Mode
	BatchSize      int // [10, 200]
	APIKey         string
	RetryLimit     int // [0, 10]，只读不执行
	TimeoutSeconds int // [10, 300]，交给 transport
	ForceSend      bool
	HistoricalBars int // [100, 10000]
	ManualTrigger  bool
}

// Normalize 0 取默认值，越界夹到边界
func (s Settings) Normalize() Settings {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.BatchSize = clampDefault(s.BatchSize, 10, 200, DefaultBatchSize)
	s.HistoricalBars = clampDefault(s.HistoricalBars, 100, 10000, DefaultHistoricalBars)
	s.TimeoutSeconds = clampDefault(s.TimeoutSeconds, 10, 300, DefaultTimeoutSeconds)
	if s.RetryLimit < 0 {
		s.RetryLimit = 0
	} else if s.RetryLimit > 10 {
		s.RetryLimit = 10
	}
	return s
}

func clampDefault(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	return max(lo, min(hi, v))
}

func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// URL 实时模式发到 endpoint 本身，批量/历史发到 <endpoint>/batch
func (s Settings) URL(batch bool) string {
	if !batch {
		return s.Endpoint
	}
	return strings.TrimRight(s.Endpoint, "/") + "/batch"
}

func (s Settings) Headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if s.APIKey != "" {
		h["X-API-Key"] = s.APIKey
	}
	return h
}
