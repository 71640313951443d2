package export

import (
	"strconv"
	"time"
)

const (
	StatusDisabled = " (Disabled)"
	StatusSending  = " (Sending...)"
	StatusActive   = " (Active)"
)

// statusText 优先级：发送中 > 失败 > 已发送 > 活动
func statusText(phase Phase, failed, sent int) string {
	switch {
	case phase == PhasePending:
		return StatusSending
	case failed > 0:
		return " (Failed: " + strconv.Itoa(failed) + ")"
	case sent > 0:
		return " (Sent: " + strconv.Itoa(sent) + ")"
	default:
		return StatusActive
	}
}

// Report 每个 tick 的对外可观测输出
type Report struct {
	Enabled          bool      `json:"enabled"`
	Status           string    `json:"status"`
	Mode             string    `json:"mode"`
	Phase            string    `json:"phase"`
	TotalSent        int       `json:"total_sent"`
	Failed           int       `json:"failed"`
	LastSentIndex    int       `json:"last_sent_index"`
	HistoricalActive bool      `json:"historical_active"`
	HistoricalCursor int       `json:"historical_cursor"`
	LastExport       time.Time `json:"last_export"`
	Bars             int       `json:"bars"`

	// TriggerConsumed 本 tick 消费了手动触发，宿主据此复位触发输入
	TriggerConsumed bool `json:"-"`
}
