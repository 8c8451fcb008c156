package funds

import (
	"time"

	"gopherdex.com/pkg/orm"
	"gopherdex.com/pkg/ratelimit"
	"gopherdex.com/pkg/xredis"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

type Cfg struct {
	Driver   string        `yaml:"driver" mapstructure:"driver"` // memory | mysql
	DB       orm.Config    `yaml:"db" mapstructure:"db"`
	Redis    xredis.Config `yaml:"redis" mapstructure:"redis"` // addr 为空则不用缓存
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Breaker  BreakerCfg    `yaml:"breaker" mapstructure:"breaker"`
	Faucet   bool          `yaml:"faucet" mapstructure:"faucet"` // 开发环境允许直接加余额
}

type BreakerCfg struct {
	Enabled bool           `yaml:"enabled" mapstructure:"enabled"`
	Rule    ratelimit.Rule `yaml:"rule" mapstructure:"rule"`
}
