package export

import "time"

// RealtimeState 实时模式的水位
type RealtimeState struct {
	LastSentIndex int
	LastBarTime   time.Time // 只用于诊断，去重以下标为准
}

func (s *RealtimeState) reset() { *s = RealtimeState{LastSentIndex: -1} }

// BatchState 批量模式有自己的水位，不再与实时模式共用字段
type BatchState struct {
	LastSentIndex int
}

func (s *BatchState) reset() { *s = BatchState{LastSentIndex: -1} }

// HistoricalState 历史回补进度
type HistoricalState struct {
	Active        bool
	Cursor        int // 下一个未发送 chunk 的起点，Active 时在 [0, barCount) 内
	ManualLatched bool
	AutoFired     bool // 本次进入历史模式后自动触发过
	Source        string
	LastExport    time.Time
}

func (s *HistoricalState) reset() { *s = HistoricalState{} }

// RunState 一个启用会话内的全部可变状态。
// 只在 tick 循环里读写，不加锁。
type RunState struct {
	Mode Mode // 当前“活着”的字段属于哪个模式

	FailedRequests int
	TotalSent      int

	Realtime   RealtimeState
	Batch      BatchState
	Historical HistoricalState

	prevTrigger bool
}

// newRunState 首次启用时创建：实时/批量水位从最新 bar 开始，不回放积压
func newRunState(mode Mode, barCount int) *RunState {
	st := &RunState{Mode: mode}
	st.Realtime.reset()
	st.Batch.reset()
	st.Realtime.LastSentIndex = barCount - 1
	st.Batch.LastSentIndex = barCount - 1
	return st
}
