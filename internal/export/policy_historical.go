package export

import (
	"context"

	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/metrics"
)

const (
	historicalChunk = 100
	stallThreshold  = 5
	stallSkip       = 100

	sourceHistorical       = "historical_export"
	sourceManualHistorical = "manual_historical_export"
)

// historicalPolicy 按 chunk 从旧到新回补最近 N 根
type historicalPolicy struct{}

func (historicalPolicy) Select(st *RunState, in tickInput) (selection, bool) {
	h := &st.Historical
	if !h.Active || in.barCount == 0 {
		return selection{}, false
	}
	from := min(h.Cursor, in.barCount-1)
	return selection{
		Mode:   ModeHistorical,
		From:   from,
		To:     min(from+historicalChunk-1, in.barCount-1),
		Source: h.Source,
	}, true
}

func (historicalPolicy) Accepted(st *RunState, _ selection, in tickInput) {
	st.Historical.LastExport = in.now
}

func (historicalPolicy) Rejected(*RunState, selection, tickInput) {}

// Succeeded 游标只在非空成功响应后推进；到达末尾或达到目标条数即结束
func (historicalPolicy) Succeeded(st *RunState, sel selection, in tickInput) {
	h := &st.Historical
	if !h.Active || sel.From != h.Cursor {
		return
	}
	next := h.Cursor + historicalChunk
	if next < in.barCount && st.TotalSent < in.settings.HistoricalBars {
		h.Cursor = next
		metrics.ExportHistoricalCursor.Set(float64(next))
		logger.Info(in.ctx, "historical cursor advanced",
			zap.Int("cursor", next), zap.Int("total_sent", st.TotalSent), zap.Int("target", in.settings.HistoricalBars))
		return
	}

	logger.Info(in.ctx, "historical export complete",
		zap.Int("total_sent", st.TotalSent), zap.String("source", h.Source))
	h.Active = false
	h.ManualLatched = false
	h.Cursor = 0
	metrics.ExportHistoricalCursor.Set(0)
}

// startHistorical 从 max(0, available-target) 开始，totalSent 和失败计数清零：
// 之前模式或上一轮留下的失败不算进这一轮的断流判断
func startHistorical(ctx context.Context, st *RunState, in tickInput, source string) {
	h := &st.Historical
	h.Active = true
	h.Cursor = max(0, in.barCount-in.settings.HistoricalBars)
	h.Source = source
	st.TotalSent = 0
	st.FailedRequests = 0
	metrics.ExportHistoricalCursor.Set(float64(h.Cursor))

	logger.Info(ctx, "historical export started",
		zap.String("source", source),
		zap.Int("target", in.settings.HistoricalBars),
		zap.Int("available", in.barCount),
		zap.Int("cursor", h.Cursor),
	)
}

// evalTriggers 处理自动触发和手动触发沿；返回手动触发是否在本 tick 被消费。
// restart 为 true 表示需要丢弃在途请求（旧一轮的结果不能推进新一轮的游标）。
func evalTriggers(ctx context.Context, st *RunState, in tickInput) (consumed, restart bool) {
	h := &st.Historical
	trig := in.settings.ManualTrigger
	edge := trig && !st.prevTrigger
	st.prevTrigger = trig

	if edge && !h.ManualLatched {
		restart = h.Active
		h.ManualLatched = true
		h.AutoFired = true
		startHistorical(ctx, st, in, sourceManualHistorical)
		return true, restart
	}

	// 自动触发：每次进入历史模式只触发一次，且有数据、手动输入为低
	if !h.AutoFired && !trig && in.barCount > 0 {
		h.AutoFired = true
		startHistorical(ctx, st, in, sourceHistorical)
	}
	return false, false
}

// breakStall 连续失败超过阈值时强制跳过一段，不管当前请求处于什么阶段
func breakStall(ctx context.Context, st *RunState, in tickInput) bool {
	h := &st.Historical
	if !h.Active || st.FailedRequests <= stallThreshold {
		return false
	}
	old := h.Cursor
	h.Cursor = max(0, min(in.barCount-1, h.Cursor+stallSkip))
	st.FailedRequests = 0
	metrics.ExportStallSkipsTotal.Inc()
	metrics.ExportHistoricalCursor.Set(float64(h.Cursor))

	logger.Warn(ctx, "historical export stalled, skipping ahead",
		zap.Int("from", old), zap.Int("to", h.Cursor), zap.Int("threshold", stallThreshold))
	return true
}
