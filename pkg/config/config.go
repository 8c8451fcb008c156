package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopherdex.com/pkg/logger"
)

// Load 读 config/{service}.yaml；file 非空时直接用这个文件
// 环境变量覆盖，例如 DEX_SERVICE_HTTP_ADDR 覆盖 http.addr
func Load(service, file string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".") // 兜底，直接放当前目录也行
	}
	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(service, "-", "_")))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// Watch 监听文件变更，重新解析到 out 后回调 onChange
// out 会被并发改写，调用方只应在 onChange 里读取可热更的字段
func Watch(v *viper.Viper, service string, out interface{}, onChange func()) {
	ctx := context.Background()
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info(ctx, "config file changed", zap.String("service", service), zap.String("file", e.Name))
		if err := v.Unmarshal(out); err != nil {
			logger.Error(ctx, "reload config error", zap.String("service", service), zap.Error(err))
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
}
