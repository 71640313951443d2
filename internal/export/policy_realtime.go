package export

// realtimePolicy 逐根发送刚收盘的 bar
type realtimePolicy struct{}

func (realtimePolicy) Select(st *RunState, in tickInput) (selection, bool) {
	rt := &st.Realtime
	pos := in.pos
	if pos < 0 || pos >= in.barCount {
		return selection{}, false
	}

	// 强制发送：每个位置发一次，不看收盘状态
	if in.settings.ForceSend {
		if pos == rt.LastSentIndex {
			return selection{}, false
		}
		return single(pos), true
	}

	mostRecent := in.barCount - 1
	// 主路径：位于最新 bar 时，发送刚收盘的前一根
	if pos == mostRecent {
		prev := pos - 1
		if prev >= 0 && in.src.Closed(prev) && rt.LastSentIndex < prev {
			return single(prev), true
		}
		return selection{}, false
	}
	// 次路径：回看位置上已收盘且未发送的 bar
	if in.src.Closed(pos) && rt.LastSentIndex < pos {
		return single(pos), true
	}
	return selection{}, false
}

func single(i int) selection {
	return selection{Mode: ModeRealtime, From: i, To: i, Single: true}
}

func (realtimePolicy) Accepted(st *RunState, sel selection, in tickInput) {
	st.Realtime.LastSentIndex = sel.To
	st.Realtime.LastBarTime = in.src.At(sel.To).Time()
}

// Rejected 非强制模式水位不动，下个机会重试同一根；强制模式回滚到 -1
func (realtimePolicy) Rejected(st *RunState, _ selection, in tickInput) {
	if in.settings.ForceSend {
		st.Realtime.LastSentIndex = -1
	}
}

func (realtimePolicy) Succeeded(*RunState, selection, tickInput) {}
