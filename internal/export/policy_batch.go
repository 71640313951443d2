package export

const sourceBatch = "batch"

// batchPolicy 攒够 batchSize 根新 bar 后一次发送 [pos-batchSize+1, pos]
type batchPolicy struct{}

func (batchPolicy) Select(st *RunState, in tickInput) (selection, bool) {
	pos := in.pos
	if pos < 0 || pos >= in.barCount {
		return selection{}, false
	}
	size := in.settings.BatchSize
	if pos-st.Batch.LastSentIndex < size {
		return selection{}, false
	}
	return selection{
		Mode:   ModeBatch,
		From:   max(0, pos-size+1),
		To:     pos,
		Source: sourceBatch,
	}, true
}

// Accepted 受理即推进水位
func (batchPolicy) Accepted(st *RunState, sel selection, _ tickInput) {
	st.Batch.LastSentIndex = sel.To
}

func (batchPolicy) Rejected(*RunState, selection, tickInput)  {}
func (batchPolicy) Succeeded(*RunState, selection, tickInput) {}
