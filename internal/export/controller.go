package export

import (
	"context"

	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/metrics"
	"tradeflow.com/pkg/xerr"
)

// selection 一次发送的内容：闭区间 [From, To]
type selection struct {
	Mode   Mode
	From   int
	To     int
	Single bool
	Source string
}

func (s selection) count() int { return s.To - s.From + 1 }

// result 一次完成的请求
type result struct {
	sel  selection
	body []byte
	err  error // nil 表示成功且响应非空
}

// Controller 保证至多一个在途请求，并把 transport 的结果翻译成状态迁移
type Controller struct {
	tr Transport

	phase  Phase
	handle Handle
	sel    selection

	completedTick uint64
}

func NewController(tr Transport) *Controller {
	return &Controller{tr: tr}
}

func (c *Controller) Phase() Phase { return c.phase }

// Dispatch 返回 transport 是否受理；受理后进入 Pending。
// Pending/Completed 时调用属于编程错误，直接拒绝。
func (c *Controller) Dispatch(ctx context.Context, sel selection, req Request) error {
	if c.phase != PhaseIdle {
		return xerr.New(xerr.DispatchRejected, "request already in flight")
	}
	h, err := c.tr.Post(ctx, req)
	if err != nil {
		if xerr.CodeOf(err) == xerr.ServerCommonError {
			err = xerr.Wrap(err, xerr.DispatchRejected, "")
		}
		return err
	}
	c.phase = PhasePending
	c.handle = h
	c.sel = sel
	metrics.SetPhase(c.phase.String(), phaseNames...)
	return nil
}

// Poll 每个 tick 调用一次：
//   - Pending：查询结果，终态时进入 Completed 并返回 result
//   - Completed：上个 tick 已处理过结果，回到 Idle；停留超过一个 tick 视为卡死，告警复位。
//     Exporter 每个 tick 都会 Poll，正常不会走到卡死分支；只有宿主跳过 Poll 时才会出现
func (c *Controller) Poll(ctx context.Context, tick uint64) (result, bool) {
	switch c.phase {
	case PhaseCompleted:
		if c.completedTick+1 < tick {
			logger.Warn(ctx, "resetting stuck request state",
				zap.Uint64("completed_tick", c.completedTick), zap.Uint64("tick", tick))
			metrics.ExportRequestsTotal.WithLabelValues(c.sel.Mode.String(), xerr.Reason(xerr.StuckPending)).Inc()
		}
		c.toIdle()
		return result{}, false

	case PhasePending:
		out := c.tr.Outcome(c.handle)
		res := result{sel: c.sel}
		switch out.Status {
		case OutcomePending:
			return result{}, false
		case OutcomeSuccess:
			if len(out.Body) == 0 {
				res.err = xerr.NewErrCode(xerr.EmptyResponse)
			} else {
				res.body = out.Body
			}
		case OutcomeFailure:
			res.err = xerr.Wrap(out.Err, xerr.TransportFailure, "")
			if res.err == nil {
				res.err = xerr.NewErrCode(xerr.TransportFailure)
			}
		default:
			// 句柄已失效：按超时处理
			res.err = xerr.New(xerr.TransportFailure, "request handle went stale")
		}
		c.tr.Forget(c.handle)
		c.handle = 0
		c.phase = PhaseCompleted
		c.completedTick = tick
		metrics.SetPhase(c.phase.String(), phaseNames...)
		return res, true
	}
	return result{}, false
}

// ForceIdle 放弃在途请求（卡死自愈 / 断流），晚到的结果被忽略
func (c *Controller) ForceIdle() {
	if c.handle != 0 {
		c.tr.Forget(c.handle)
	}
	c.toIdle()
}

// Drop 禁用时调用，语义同 ForceIdle
func (c *Controller) Drop() { c.ForceIdle() }

func (c *Controller) toIdle() {
	c.phase = PhaseIdle
	c.handle = 0
	c.sel = selection{}
	metrics.SetPhase(c.phase.String(), phaseNames...)
}
