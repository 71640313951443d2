package collector

import (
	"errors"
	"fmt"
	"time"

	"tradeflow.com/internal/export"
	"tradeflow.com/internal/export/transport"
	"tradeflow.com/pkg/xerr"
)

// 总配置，对应 config/collector.yaml
type Cfg struct {
	Name      string           `mapstructure:"name" json:"name" yaml:"name"`
	LogLevel  string           `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFile   string           `mapstructure:"log_file" json:"log_file" yaml:"log_file"` // 为空写 logs/{name}.log
	Feed      FeedCfg          `mapstructure:"feed" json:"feed" yaml:"feed"`
	Export    ExportCfg        `mapstructure:"export" json:"export" yaml:"export"`
	Transport transport.Config `mapstructure:"transport" json:"transport" yaml:"transport"`
	Broker    BrokerCfg        `mapstructure:"broker" json:"broker" yaml:"broker"`
	HTTP      HTTPCfg          `mapstructure:"http" json:"http" yaml:"http"`
	PprofAddr string           `mapstructure:"pprof_addr" json:"pprof_addr" yaml:"pprof_addr"`
	Otel      OtelCfg          `mapstructure:"otel" json:"otel" yaml:"otel"`
}

type FeedCfg struct {
	Source          string        `mapstructure:"source" json:"source" yaml:"source"` // coinbase / binance / none
	Symbol          string        `mapstructure:"symbol" json:"symbol" yaml:"symbol"` // BTC-USDT
	Interval        time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
	ReorderWindowMs int           `mapstructure:"reorder_window_ms" json:"reorder_window_ms" yaml:"reorder_window_ms"`
	SeedBars        int           `mapstructure:"seed_bars" json:"seed_bars" yaml:"seed_bars"`
	ChartNumber     int           `mapstructure:"chart_number" json:"chart_number" yaml:"chart_number"`
}

type ExportCfg struct {
	Endpoint       string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	Enabled        bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Mode           string `mapstructure:"mode" json:"mode" yaml:"mode"`
	BatchSize      int    `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	APIKey         string `mapstructure:"api_key" json:"-" yaml:"api_key"`
	RetryLimit     int    `mapstructure:"retry_limit" json:"retry_limit" yaml:"retry_limit"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	ForceSend      bool   `mapstructure:"force_send" json:"force_send" yaml:"force_send"`
	HistoricalBars int    `mapstructure:"historical_bars" json:"historical_bars" yaml:"historical_bars"`
	ManualTrigger  bool   `mapstructure:"manual_trigger" json:"manual_trigger" yaml:"manual_trigger"`
	TickIntervalMs int    `mapstructure:"tick_interval_ms" json:"tick_interval_ms" yaml:"tick_interval_ms"`
}

type BrokerCfg struct {
	NatsURL string `mapstructure:"nats_url" json:"nats_url" yaml:"nats_url"` // 为空用进程内 broker
	Topic   string `mapstructure:"topic" json:"topic" yaml:"topic"`          // 前缀，默认 export:status
}

type HTTPCfg struct {
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`
}

type OtelCfg struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr" yaml:"addr"`
}

// Settings 文件配置 -> 导出设置（未做边界夹取，由 Exporter 统一 Normalize）
func (c ExportCfg) Settings() (export.Settings, error) {
	mode, err := export.ParseMode(c.Mode)
	if err != nil {
		return export.Settings{}, xerr.Wrap(err, xerr.RequestParamsError, "invalid export.mode")
	}
	return export.Settings{
		Endpoint:       c.Endpoint,
		Enabled:        c.Enabled,
		Mode:           mode,
		BatchSize:      c.BatchSize,
		APIKey:         c.APIKey,
		RetryLimit:     c.RetryLimit,
		TimeoutSeconds: c.TimeoutSeconds,
		ForceSend:      c.ForceSend,
		HistoricalBars: c.HistoricalBars,
		ManualTrigger:  c.ManualTrigger,
	}, nil
}

func (c ExportCfg) TickInterval() time.Duration {
	if c.TickIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// withDefaults 补齐缺省值
func (c Cfg) withDefaults() Cfg {
	if c.Name == "" {
		c.Name = "collector"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Feed.Source == "" {
		c.Feed.Source = "binance"
	}
	if c.Feed.Interval <= 0 {
		c.Feed.Interval = time.Minute
	}
	if c.Feed.ChartNumber <= 0 {
		c.Feed.ChartNumber = 1
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	return c
}

func (c Cfg) Validate() error {
	var errs []error
	if c.Feed.Symbol == "" {
		errs = append(errs, errors.New("feed.symbol is required"))
	}
	switch c.Feed.Source {
	case "coinbase", "binance", "none":
	default:
		errs = append(errs, fmt.Errorf("feed.source %q not supported", c.Feed.Source))
	}
	if c.Feed.SeedBars < 0 {
		errs = append(errs, errors.New("feed.seed_bars must be >= 0"))
	}
	if _, err := c.Export.Settings(); err != nil {
		errs = append(errs, err)
	}
	if c.Export.Enabled && c.Export.Endpoint == "" {
		errs = append(errs, errors.New("export.endpoint is required when export is enabled"))
	}
	return errors.Join(errs...)
}
