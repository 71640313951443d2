package xerr

import (
	"errors"
	"fmt"
)

// 常用错误码定义
const (
	OK                 = 200
	RequestParamsError = 400
	ServerCommonError  = 500

	// 导出链路
	DispatchRejected = 1001 // transport 拒绝受理，游标不前进，下个 tick 重试同一区间
	EmptyResponse    = 1002 // 请求成功但响应体为空，按失败计数
	StuckPending     = 1003 // 结果一个周期都没被消费，自愈复位
	StallExceeded    = 1004 // 历史导出连续失败超阈值，强制跳过
	TransportFailure = 1005 // 非 2xx / 超时 / 网络错误
	BreakerOpen      = 1006
	RateLimited      = 1007
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 保留原始错误链，附带错误码
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		msg = MapErrMsg(code)
	}
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// CodeOf 取错误链上第一个 CodeError 的错误码，没有则返回 ServerCommonError
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func Is(err error, code int) bool {
	return err != nil && CodeOf(err) == code
}

// Reason 用于 metrics label，保持低基数
func Reason(code int) string {
	switch code {
	case OK:
		return "ok"
	case DispatchRejected:
		return "rejected"
	case EmptyResponse:
		return "empty"
	case StuckPending:
		return "stuck"
	case StallExceeded:
		return "stall"
	case TransportFailure:
		return "transport"
	case BreakerOpen:
		return "breaker_open"
	case RateLimited:
		return "rate_limited"
	case RequestParamsError:
		return "bad_request"
	default:
		return "internal"
	}
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case DispatchRejected:
		return "请求未被受理"
	case EmptyResponse:
		return "响应为空"
	case StuckPending:
		return "请求状态卡死"
	case StallExceeded:
		return "连续失败次数过多"
	case TransportFailure:
		return "请求失败"
	case BreakerOpen:
		return "熔断中"
	case RateLimited:
		return "请求过于频繁"
	default:
		return "未知错误"
	}
}
