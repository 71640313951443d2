package common

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"
)

func New() string { return uuid.NewString() }

// 获取id
func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequestIDFromCtx 出站请求沿用上游的 request id，没有就新生成
func RequestIDFromCtx(ctx context.Context) string {
	if ctx != nil {
		if s, ok := ctx.Value(CtxKeyRequestID).(string); ok && s != "" {
			return s
		}
	}
	return New()
}
