package collector

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"tradeflow.com/internal/export"
	"tradeflow.com/pkg/common"
	"tradeflow.com/pkg/metrics"
	"tradeflow.com/pkg/middleware"
	"tradeflow.com/pkg/ratelimit"
	"tradeflow.com/pkg/xerr"
)

// ginprom 注册到全局 registry，进程内只能建一次
var (
	promOnce sync.Once
	prom     *ginprom.Prometheus
)

// StatusView GET /api/export/status 的返回
type StatusView struct {
	Symbol    string         `json:"symbol"`
	Report    *export.Report `json:"report"`
	Overrides Overrides      `json:"overrides"`
}

type admin struct {
	symbol   string
	controls *Controls
	last     func() *export.Report
}

// NewRouter admin API：状态查询、手动触发、模式/启用覆盖，以及 /metrics。
// stream 不为空时挂到 GET /api/export/ws 推送状态变化。
func NewRouter(ctx context.Context, serviceName, symbol string, controls *Controls, last func() *export.Report, stream http.Handler) *gin.Engine {
	store := ratelimit.NewStore(20, 40, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	metrics.MustRegister()
	promOnce.Do(func() { prom = ginprom.NewPrometheus("tradeflow") })

	r := gin.New()
	prom.Use(r)
	r.Use(
		otelgin.Middleware(serviceName),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)

	a := &admin{symbol: symbol, controls: controls, last: last}
	g := r.Group("/api/export")
	g.GET("/status", a.status)
	g.POST("/trigger", a.trigger)
	g.PUT("/mode", a.setMode)
	g.PUT("/enabled", a.setEnabled)
	g.DELETE("/overrides", a.clearOverrides)
	if stream != nil {
		g.GET("/ws", gin.WrapH(stream))
	}
	return r
}

func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        h,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

func (a *admin) view() StatusView {
	return StatusView{Symbol: a.symbol, Report: a.last(), Overrides: a.controls.Overrides()}
}

func (a *admin) status(c *gin.Context) {
	common.Success(c, a.view())
}

func (a *admin) trigger(c *gin.Context) {
	a.controls.Trigger()
	common.Success(c, a.view())
}

type modeReq struct {
	Mode string `json:"mode" binding:"required"`
}

func (a *admin) setMode(c *gin.Context) {
	var req modeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.RequestParamsError, ""))
		return
	}
	m, err := export.ParseMode(req.Mode)
	if err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.RequestParamsError, ""))
		return
	}
	a.controls.SetMode(m)
	common.Success(c, a.view())
}

type enabledReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (a *admin) setEnabled(c *gin.Context) {
	var req enabledReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.RequestParamsError, ""))
		return
	}
	a.controls.SetEnabled(*req.Enabled)
	common.Success(c, a.view())
}

func (a *admin) clearOverrides(c *gin.Context) {
	a.controls.ClearOverrides()
	common.Success(c, a.view())
}
