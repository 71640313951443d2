package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"tradeflow.com/pkg/logger"
)

// New 约定：config/{service}.yaml，环境变量前缀为大写的 service
//
//	COLLECTOR_EXPORT_MODE 覆盖 export.mode
//	COLLECTOR_EXPORT_ENABLED 覆盖 export.enabled
func New(service string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".") // 兜底，直接放当前目录也行

	v.SetEnvPrefix(strings.ToUpper(service))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load 读取一次配置
func Load[T any](service string) (*T, *viper.Viper, error) {
	v := New(service)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, err
	}
	out := new(T)
	if err := v.Unmarshal(out); err != nil {
		return nil, nil, err
	}
	logger.Log.Info("config loaded", zap.String("service", service), zap.String("file", v.ConfigFileUsed()))
	return out, v, nil
}

// LoadAndWatch 读取配置并监听文件变更。
// 每次变更都解码成一个新的 *T 交给 onChange；调用方自己做原子替换，
// 不在原对象上就地改写（tick 循环在并发读）。
func LoadAndWatch[T any](service string, onChange func(*T)) (*T, *viper.Viper, error) {
	out, v, err := Load[T](service)
	if err != nil {
		return nil, nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Log.Info("config file changed", zap.String("service", service), zap.String("file", e.Name))

		next := new(T)
		if err := v.Unmarshal(next); err != nil {
			logger.Log.Warn("reload config error", zap.String("service", service), zap.Error(err))
			return
		}
		if onChange != nil {
			onChange(next)
		}
		logger.Log.Info("config reloaded OK", zap.String("service", service))
	})
	v.WatchConfig()

	return out, v, nil
}
