package config

import (
	"bytes"
	"errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
	"gopherex.com/livefeed/pkg/logger"
)

// New 约定：config/{service}.yaml，环境变量前缀为大写 service
//
//	LIVEFEED_COINBASE_URL 覆盖 coinbase.url
func New(service string, paths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 读一次配置到 out，不监听变更
func Load(v *viper.Viper, out interface{}) error {
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(out)
}

// LoadWithDefaults out 里已有的值作为默认值（按 yaml tag 展开成 key），
// 所以没有配置文件时环境变量也能覆盖；found=false 表示没找到配置文件
func LoadWithDefaults(v *viper.Viper, out interface{}) (found bool, err error) {
	if err := SetDefaults(v, out); err != nil {
		return false, err
	}
	found = true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return false, err
		}
		found = false
	}
	return found, v.Unmarshal(out)
}

// SetDefaults 把 defaults 的每个叶子 key 注册成 viper 默认值，AutomaticEnv 只认识注册过的 key
func SetDefaults(v *viper.Viper, defaults interface{}) error {
	b, err := yaml.Marshal(defaults)
	if err != nil {
		return err
	}
	d := viper.New()
	d.SetConfigType("yaml")
	if err := d.ReadConfig(bytes.NewReader(b)); err != nil {
		return err
	}
	for _, k := range d.AllKeys() {
		v.SetDefault(k, d.Get(k))
	}
	return nil
}

// LoadAndWatch 读取配置并监听文件变更，热更新到 out；onChange 可为 nil
func LoadAndWatch(service string, out interface{}, onChange func(), paths ...string) (*viper.Viper, error) {
	v := New(service, paths...)
	if err := Load(v, out); err != nil {
		return nil, err
	}

	log := logger.Named("config")
	log.Info("config loaded", zap.String("service", service), zap.String("file", v.ConfigFileUsed()))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed", zap.String("file", e.Name))
		if err := v.Unmarshal(out); err != nil {
			log.Error("reload config failed", zap.Error(err))
			return
		}
		if onChange != nil {
			onChange()
		}
	})

	return v, nil
}
