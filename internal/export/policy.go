package export

import (
	"context"
	"time"
)

// tickInput 一次 tick 的只读输入
type tickInput struct {
	ctx      context.Context
	src      BarSource
	pos      int
	barCount int
	settings Settings
	now      time.Time
}

// policy 三种模式共享请求生命周期，只在“选什么”和“成功后怎么推进”上不同
type policy interface {
	// Select 只在 Idle 时调用
	Select(st *RunState, in tickInput) (selection, bool)
	Accepted(st *RunState, sel selection, in tickInput)
	Rejected(st *RunState, sel selection, in tickInput)
	Succeeded(st *RunState, sel selection, in tickInput)
}
