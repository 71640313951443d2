package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"tradeflow.com/internal/export"
)

func TestControls_OverridesWin(t *testing.T) {
	c := NewControls(export.Settings{Enabled: true, Mode: export.ModeRealtime, BatchSize: 80})

	c.SetMode(export.ModeHistorical)
	c.SetEnabled(false)
	s := c.Snapshot()
	assert.Equal(t, export.ModeHistorical, s.Mode)
	assert.False(t, s.Enabled)
	assert.Equal(t, 80, s.BatchSize)

	// 热更新不会冲掉覆盖
	c.SetBase(export.Settings{Enabled: true, Mode: export.ModeBatch, BatchSize: 100})
	s = c.Snapshot()
	assert.Equal(t, export.ModeHistorical, s.Mode)
	assert.Equal(t, 100, s.BatchSize)

	c.ClearOverrides()
	s = c.Snapshot()
	assert.Equal(t, export.ModeBatch, s.Mode)
	assert.True(t, s.Enabled)
	assert.Equal(t, Overrides{}, c.Overrides())
}

func TestControls_ApiTriggerSelfResets(t *testing.T) {
	c := NewControls(export.Settings{})
	c.Trigger()
	assert.True(t, c.Snapshot().ManualTrigger)
	assert.True(t, c.Overrides().Trigger)

	c.Ack(export.Report{})
	assert.True(t, c.Snapshot().ManualTrigger, "not consumed yet")

	c.Ack(export.Report{TriggerConsumed: true})
	assert.False(t, c.Snapshot().ManualTrigger)
}

func TestControls_FileTriggerAcknowledgedUntilLow(t *testing.T) {
	c := NewControls(export.Settings{ManualTrigger: true})
	assert.True(t, c.Snapshot().ManualTrigger)

	c.Ack(export.Report{TriggerConsumed: true})
	assert.False(t, c.Snapshot().ManualTrigger)

	// 文件值仍为高：保持已确认
	c.SetBase(export.Settings{ManualTrigger: true})
	assert.False(t, c.Snapshot().ManualTrigger)

	c.SetBase(export.Settings{})
	c.SetBase(export.Settings{ManualTrigger: true})
	assert.True(t, c.Snapshot().ManualTrigger)
}
