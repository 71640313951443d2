package collector

import (
	"sync"

	"tradeflow.com/internal/export"
)

// Controls 文件配置 + 运行时覆盖（admin API）。
// 覆盖优先于文件；手动触发在 Exporter 报告消费后自动复位。
type Controls struct {
	mu sync.Mutex

	base export.Settings

	mode    *export.Mode
	enabled *bool

	apiTrigger       bool
	fileTriggerAcked bool
}

func NewControls(base export.Settings) *Controls {
	return &Controls{base: base}
}

// SetBase 配置热更新
func (c *Controls) SetBase(s export.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.ManualTrigger {
		// 文件里的触发拉低后，下一次拉高重新生效
		c.fileTriggerAcked = false
	}
	c.base = s
}

func (c *Controls) SetMode(m export.Mode) {
	c.mu.Lock()
	c.mode = &m
	c.mu.Unlock()
}

func (c *Controls) SetEnabled(v bool) {
	c.mu.Lock()
	c.enabled = &v
	c.mu.Unlock()
}

// ClearOverrides 回到文件配置
func (c *Controls) ClearOverrides() {
	c.mu.Lock()
	c.mode, c.enabled = nil, nil
	c.mu.Unlock()
}

// Trigger 请求一次手动历史导出
func (c *Controls) Trigger() {
	c.mu.Lock()
	c.apiTrigger = true
	c.mu.Unlock()
}

// Snapshot 本 tick 生效的设置
func (c *Controls) Snapshot() export.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.base
	if c.mode != nil {
		s.Mode = *c.mode
	}
	if c.enabled != nil {
		s.Enabled = *c.enabled
	}
	s.ManualTrigger = c.apiTrigger || (c.base.ManualTrigger && !c.fileTriggerAcked)
	return s
}

// Ack 根据 tick 报告复位已消费的触发
func (c *Controls) Ack(rep export.Report) {
	if !rep.TriggerConsumed {
		return
	}
	c.mu.Lock()
	c.apiTrigger = false
	if c.base.ManualTrigger {
		c.fileTriggerAcked = true
	}
	c.mu.Unlock()
}

type Overrides struct {
	Mode    *string `json:"mode"`
	Enabled *bool   `json:"enabled"`
	Trigger bool    `json:"trigger_pending"`
}

func (c *Controls) Overrides() Overrides {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := Overrides{Trigger: c.apiTrigger}
	if c.mode != nil {
		s := c.mode.String()
		o.Mode = &s
	}
	if c.enabled != nil {
		v := *c.enabled
		o.Enabled = &v
	}
	return o
}
