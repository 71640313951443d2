package export

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/metrics"
	"tradeflow.com/pkg/xerr"
)

// Exporter 导出状态机。Tick 由宿主单线程反复调用，从不并发，内部不加锁。
type Exporter struct {
	src BarSource
	enc Encoder
	ctl *Controller

	state *RunState
	tick  uint64
	now   func() time.Time

	policies map[Mode]policy
}

type Option func(*Exporter)

// WithClock 测试用
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

func NewExporter(src BarSource, enc Encoder, tr Transport, opts ...Option) *Exporter {
	e := &Exporter{
		src: src,
		enc: enc,
		ctl: NewController(tr),
		now: time.Now,
		policies: map[Mode]policy{
			ModeRealtime:   realtimePolicy{},
			ModeBatch:      batchPolicy{},
			ModeHistorical: historicalPolicy{},
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State 只读快照；禁用时为 nil
func (e *Exporter) State() *RunState {
	if e.state == nil {
		return nil
	}
	cp := *e.state
	return &cp
}

func (e *Exporter) Phase() Phase { return e.ctl.Phase() }

// Tick 一次调用：调和模式 -> 轮询在途请求 -> 断流检查 -> 触发 -> 选择 -> 发送 -> 遥测。
// pos 是宿主当前所在的 bar 下标。
func (e *Exporter) Tick(ctx context.Context, s Settings, pos int) Report {
	e.tick++
	s = s.Normalize()

	if !s.Enabled {
		return e.disable(ctx)
	}

	in := tickInput{
		ctx:      ctx,
		src:      e.src,
		pos:      pos,
		barCount: e.src.Len(),
		settings: s,
		now:      e.now(),
	}

	if e.state == nil {
		e.state = newRunState(s.Mode, in.barCount)
		logger.Info(ctx, "export session initialized",
			zap.Stringer("mode", s.Mode),
			zap.Int("last_sent_index", e.state.Realtime.LastSentIndex),
			zap.Int("bars", in.barCount),
		)
	}
	st := e.state

	reconcile(ctx, st, s.Mode, in.barCount)

	if res, ok := e.ctl.Poll(ctx, e.tick); ok {
		e.apply(st, res, in)
	}

	var rep Report
	if st.Mode == ModeHistorical {
		// 断流检查只看已在进行的一轮，新触发的一轮必须先发出第一段
		if breakStall(ctx, st, in) {
			e.ctl.ForceIdle()
		}
		consumed, restart := evalTriggers(ctx, st, in)
		rep.TriggerConsumed = consumed
		if restart {
			e.ctl.ForceIdle()
		}
	} else {
		st.prevTrigger = s.ManualTrigger
	}

	if e.ctl.Phase() == PhaseIdle && s.Endpoint != "" {
		p := e.policies[st.Mode]
		if sel, ok := p.Select(st, in); ok {
			e.dispatch(st, p, sel, in)
		} else if logger.Enabled(zapcore.DebugLevel) {
			logger.Debug(ctx, "nothing to send",
				zap.Stringer("mode", st.Mode),
				zap.Int("pos", pos),
				zap.Int("bars", in.barCount),
				zap.Int("realtime_last_sent", st.Realtime.LastSentIndex),
				zap.Int("batch_last_sent", st.Batch.LastSentIndex),
				zap.Bool("force", s.ForceSend),
			)
		}
	}

	metrics.ExportFailedRequests.Set(float64(st.FailedRequests))
	return e.report(st, rep, in)
}

func (e *Exporter) dispatch(st *RunState, p policy, sel selection, in tickInput) {
	ctx := in.ctx
	mode := sel.Mode.String()

	req, err := e.build(sel, in)
	if err == nil {
		err = e.ctl.Dispatch(ctx, sel, req)
	}
	if err != nil {
		st.FailedRequests++
		p.Rejected(st, sel, in)
		metrics.ExportRequestsTotal.WithLabelValues(mode, xerr.Reason(xerr.CodeOf(err))).Inc()
		logger.Error(ctx, "export dispatch rejected",
			zap.String("mode", mode),
			zap.Int("from", sel.From),
			zap.Int("to", sel.To),
			zap.Int("failed", st.FailedRequests),
			zap.Error(err),
		)
		return
	}

	n := sel.count()
	st.TotalSent += n
	p.Accepted(st, sel, in)
	metrics.ExportSentTotal.WithLabelValues(mode).Add(float64(n))
	metrics.ExportRequestsTotal.WithLabelValues(mode, "accepted").Inc()
	logger.Info(ctx, "export dispatched",
		zap.String("mode", mode),
		zap.String("url", req.URL),
		zap.Int("from", sel.From),
		zap.Int("to", sel.To),
		zap.Int("total_sent", st.TotalSent),
	)
}

func (e *Exporter) build(sel selection, in tickInput) (Request, error) {
	var (
		body []byte
		err  error
	)
	if sel.Single {
		body, err = e.enc.EncodeSingle(in.src.At(sel.From))
	} else {
		bars := in.src.Range(sel.From, sel.To)
		if len(bars) != sel.count() {
			return Request{}, xerr.New(xerr.RequestParamsError, "bar range out of source bounds")
		}
		body, err = e.enc.EncodeBatch(bars, sel.Source)
	}
	if err != nil {
		return Request{}, xerr.Wrap(err, xerr.RequestParamsError, "encode payload")
	}

	kind := "single"
	if !sel.Single {
		kind = "batch"
	}
	return Request{
		URL:     in.settings.URL(!sel.Single),
		Kind:    kind,
		Body:    body,
		Headers: in.settings.Headers(),
		Timeout: in.settings.Timeout(),
	}, nil
}

// apply 处理一次完成的请求：非空成功清零失败计数并交给策略推进，其余计失败
func (e *Exporter) apply(st *RunState, res result, in tickInput) {
	mode := res.sel.Mode.String()
	if res.err != nil {
		st.FailedRequests++
		metrics.ExportRequestsTotal.WithLabelValues(mode, xerr.Reason(xerr.CodeOf(res.err))).Inc()
		logger.Warn(in.ctx, "export request failed",
			zap.String("mode", mode),
			zap.Int("from", res.sel.From),
			zap.Int("to", res.sel.To),
			zap.Int("failed", st.FailedRequests),
			zap.Error(res.err),
		)
		return
	}

	st.FailedRequests = 0
	metrics.ExportRequestsTotal.WithLabelValues(mode, "success").Inc()
	logger.Info(in.ctx, "export response received",
		zap.String("mode", mode),
		zap.Int("from", res.sel.From),
		zap.Int("to", res.sel.To),
		zap.Int("bytes", len(res.body)),
	)
	// 模式已切走：结果只用于计数，不推进别的模式的进度
	if res.sel.Mode == st.Mode {
		e.policies[st.Mode].Succeeded(st, res.sel, in)
	}
}

// disable 完整复位：丢弃在途请求句柄，状态置空，下次启用重新创建
func (e *Exporter) disable(ctx context.Context) Report {
	if e.state != nil {
		logger.Info(ctx, "export disabled, resetting state",
			zap.Stringer("phase", e.ctl.Phase()), zap.Int("total_sent", e.state.TotalSent))
		e.ctl.Drop()
		e.state = nil
		metrics.ExportFailedRequests.Set(0)
		metrics.ExportHistoricalCursor.Set(0)
	}
	return Report{Status: StatusDisabled, Phase: PhaseIdle.String(), LastSentIndex: -1, Bars: e.src.Len()}
}

func (e *Exporter) report(st *RunState, rep Report, in tickInput) Report {
	rep.Enabled = true
	rep.Status = statusText(e.ctl.Phase(), st.FailedRequests, st.TotalSent)
	rep.Mode = st.Mode.String()
	rep.Phase = e.ctl.Phase().String()
	rep.TotalSent = st.TotalSent
	rep.Failed = st.FailedRequests
	rep.HistoricalActive = st.Historical.Active
	rep.HistoricalCursor = st.Historical.Cursor
	rep.LastExport = st.Historical.LastExport
	rep.Bars = in.barCount
	switch st.Mode {
	case ModeBatch:
		rep.LastSentIndex = st.Batch.LastSentIndex
	case ModeHistorical:
		rep.LastSentIndex = -1
	default:
		rep.LastSentIndex = st.Realtime.LastSentIndex
	}
	return rep
}
