package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailErr 按 xerr 错误码回包：参数错误 400，其余 500
func FailErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	httpStatus := http.StatusInternalServerError
	switch code {
	case xerr.RequestParamsError:
		httpStatus = http.StatusBadRequest
	case xerr.RateLimited:
		httpStatus = http.StatusTooManyRequests
	}
	FailLogged(c, httpStatus, code, xerr.MapErrMsg(code), err)
}

func FailLogged(c *gin.Context, httpStatus int, code int, msg string, err error) {
	logger.Warn(c.Request.Context(), "http error",
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.String("message", msg),
		zap.Error(err),
	)
	Fail(c, httpStatus, code, msg)
}
