package config

import (
	"time"

	"gopherdex.com/internal/broadcast"
	"gopherdex.com/internal/crank"
	"gopherdex.com/internal/funds"
)

// 总配置
type DexConfig struct {
	Name      string          `mapstructure:"name" yaml:"name"`
	ProgramID string          `mapstructure:"program_id" yaml:"program_id"` // 空则用默认 program id
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Trace     TraceConfig     `mapstructure:"trace" yaml:"trace"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Funds     funds.Cfg       `mapstructure:"funds" yaml:"funds"`
	Crank     CrankConfig     `mapstructure:"crank" yaml:"crank"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"` // 空则只打 stdout
}

// HTTP 配置
type HTTPConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // 每 IP 每路由 rps
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

type TraceConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Host        string  `mapstructure:"host" yaml:"host"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

type EngineConfig struct {
	WALDir          string        `mapstructure:"wal_dir" yaml:"wal_dir"`
	EnableCmdWAL    bool          `mapstructure:"enable_cmd_wal" yaml:"enable_cmd_wal"`
	EnableOutbox    bool          `mapstructure:"enable_outbox" yaml:"enable_outbox"`
	EnablePublisher bool          `mapstructure:"enable_publisher" yaml:"enable_publisher"`
	PublisherPoll   time.Duration `mapstructure:"publisher_poll" yaml:"publisher_poll"`
	Codec           string        `mapstructure:"codec" yaml:"codec"` // binary | json
	SnapshotDir     string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	SnapshotEvery   uint64        `mapstructure:"snapshot_every" yaml:"snapshot_every"`
	MailboxSize     int           `mapstructure:"mailbox_size" yaml:"mailbox_size"`
	BatchMax        int           `mapstructure:"batch_max" yaml:"batch_max"`
	EventBusSize    int           `mapstructure:"event_bus_size" yaml:"event_bus_size"`
}

type CrankConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	Limit     int           `mapstructure:"limit" yaml:"limit"`
	LeaderKey string        `mapstructure:"leader_key" yaml:"leader_key"` // 非空且配了 redis 才抢锁
	LeaderTTL time.Duration `mapstructure:"leader_ttl" yaml:"leader_ttl"`
}

func (c CrankConfig) Crank() crank.Config {
	return crank.Config{Interval: c.Interval, Limit: c.Limit}
}

type BroadcastConfig struct {
	Driver  string                `mapstructure:"driver" yaml:"driver"` // none | mem | nats | kafka
	NatsURL string                `mapstructure:"nats_url" yaml:"nats_url"`
	Kafka   broadcast.KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
}
