package export

import (
	"context"

	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
)

// reconcile 配置的模式与状态里的模式不一致时做一次性清理；一致时什么都不做
func reconcile(ctx context.Context, st *RunState, want Mode, barCount int) bool {
	from := st.Mode
	if from == want {
		return false
	}

	switch want {
	case ModeRealtime:
		st.Historical.reset()
		st.Batch.reset()
		st.Realtime.reset()
		st.Realtime.LastSentIndex = barCount - 1

	case ModeBatch:
		wm := -1
		if from == ModeRealtime {
			wm = st.Realtime.LastSentIndex
		}
		st.Realtime.reset()
		st.Historical.reset()
		st.Batch.LastSentIndex = wm

	case ModeHistorical:
		st.Realtime.reset()
		st.Batch.reset()
	}
	st.Mode = want

	logger.Info(ctx, "export mode switched",
		zap.Stringer("from", from),
		zap.Stringer("to", want),
		zap.Int("realtime_last_sent", st.Realtime.LastSentIndex),
		zap.Int("batch_last_sent", st.Batch.LastSentIndex),
	)
	return true
}
