package collector

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"tradeflow.com/internal/export"
	"tradeflow.com/internal/export/payload"
	"tradeflow.com/internal/export/transport"
	"tradeflow.com/internal/quotes/datasource/binance"
	"tradeflow.com/internal/quotes/datasource/coinbase"
	"tradeflow.com/internal/quotes/gateway"
	"tradeflow.com/internal/quotes/kline"
	"tradeflow.com/internal/quotes/mdsource"
	"tradeflow.com/internal/quotes/ws"
	"tradeflow.com/pkg/logger"
)

// App 组装：行情源 -> Feed -> Series -> Loop(Exporter) -> Transport，外加 admin API
type App struct {
	cfg atomic.Pointer[Cfg]

	series    *kline.Series
	feed      *kline.Feed
	runner    *mdsource.Runner
	seeder    *binance.KlineClient
	transport *transport.Client
	controls  *Controls
	loop      *Loop
	broker    gateway.Broker
	topic     string
}

func New(cfg *Cfg) (*App, error) {
	c := cfg.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	settings, _ := c.Export.Settings()

	broker, err := gateway.NewBroker(c.Broker.NatsURL)
	if err != nil {
		return nil, err
	}

	series := kline.NewSeries(c.Feed.Symbol, 0)
	tr := transport.New(c.Transport)
	enc := payload.NewEncoder(c.Feed.ChartNumber, "")
	controls := NewControls(settings)
	exp := export.NewExporter(series, enc, tr)
	topic := gateway.StatusTopic(c.Broker.Topic, c.Feed.Symbol)
	pub := gateway.NewPublisher(broker, topic)

	a := &App{
		series:    series,
		transport: tr,
		controls:  controls,
		broker:    broker,
		topic:     topic,
		loop:      NewLoop(series, exp, controls, pub, c.Export.TickInterval()),
		feed: kline.NewFeed(kline.FeedConfig{
			Interval:      c.Feed.Interval,
			ReorderWindow: time.Duration(c.Feed.ReorderWindowMs) * time.Millisecond,
			DropWhenFull:  true,
		}, series),
	}
	if c.Feed.SeedBars > 0 {
		a.seeder = binance.NewKlineClient()
	}
	switch c.Feed.Source {
	case "coinbase":
		a.runner = mdsource.NewRunner(coinbase.NewSource([]string{c.Feed.Symbol}))
	case "binance":
		a.runner = mdsource.NewRunner(binance.NewAggTradeSource(c.Feed.Symbol))
	}
	a.cfg.Store(&c)
	return a, nil
}

func (a *App) Controls() *Controls { return a.controls }

func (a *App) Series() *kline.Series { return a.series }

func (a *App) Last() *export.Report { return a.loop.Last() }

func (a *App) Config() *Cfg { return a.cfg.Load() }

// Reload 配置文件变更：日志级别、导出设置、出站限速、tick 周期热生效；
// 行情源/symbol/监听地址需要重启
func (a *App) Reload(next *Cfg) {
	c := next.withDefaults()
	if err := c.Validate(); err != nil {
		logger.Warn(context.Background(), "config reload rejected", zap.Error(err))
		return
	}
	prev := a.cfg.Load()
	if c.Feed != prev.Feed || c.HTTP != prev.HTTP || c.Broker != prev.Broker {
		logger.Warn(context.Background(), "feed/http/broker changes need a restart")
	}

	settings, _ := c.Export.Settings()
	logger.SetLevel(c.LogLevel)
	a.controls.SetBase(settings)
	a.transport.SetRate(c.Transport.RPS, c.Transport.Burst)
	a.loop.SetInterval(c.Export.TickInterval())
	a.cfg.Store(&c)
}

// seed 用 REST 历史 K 线预填充；失败只告警，不影响实时采集
func (a *App) seed(ctx context.Context) {
	c := a.cfg.Load()
	if a.seeder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	bars, err := a.seeder.Recent(ctx, c.Feed.Symbol, c.Feed.Interval, c.Feed.SeedBars)
	if err != nil {
		logger.Warn(ctx, "seed klines failed", zap.String("symbol", c.Feed.Symbol), zap.Error(err))
		return
	}
	n := a.series.Seed(bars)
	logger.Info(ctx, "series seeded", zap.String("symbol", c.Feed.Symbol), zap.Int("bars", n))
}

// Run 阻塞到 ctx 结束或任一组件出错
func (a *App) Run(ctx context.Context) error {
	c := a.cfg.Load()
	defer a.broker.Close()

	a.seed(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(a.feed.Run(ctx)) })

	if a.runner != nil {
		a.runner.Run(ctx)
		g.Go(func() error {
			for tr := range a.runner.Out {
				a.feed.OfferTrade(tr)
			}
			return nil
		})
	}

	g.Go(func() error { return ignoreCanceled(a.loop.Run(ctx)) })

	hub := ws.NewHub()
	g.Go(func() error { return ignoreCanceled(ws.Bridge(ctx, a.broker, hub, []string{a.topic})) })

	router := NewRouter(ctx, c.Name, c.Feed.Symbol, a.controls, a.loop.Last, ws.NewServer(ctx, hub))
	g.Go(func() error { return serve(ctx, "admin http", NewServer(c.HTTP.Addr, router)) })

	if c.PprofAddr != "" {
		g.Go(func() error { return serve(ctx, "pprof", newPprofServer(c.PprofAddr)) })
	}

	logger.Info(ctx, "collector started",
		zap.String("symbol", c.Feed.Symbol),
		zap.String("source", c.Feed.Source),
		zap.Duration("interval", c.Feed.Interval),
		zap.String("mode", c.Export.Mode),
		zap.Bool("enabled", c.Export.Enabled),
	)
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
