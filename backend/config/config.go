package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		// 需要带 parseTime=true
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		// 一个地址走单机，多个地址走 cluster
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers   []string `mapstructure:"brokers"`
		Topic     string   `mapstructure:"topic"`
		QueueSize int      `mapstructure:"queueSize"`
		Workers   int      `mapstructure:"workers"`
		MaxRetry  int      `mapstructure:"maxRetry"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret     string        `mapstructure:"secret"`
		AccessTTL  time.Duration `mapstructure:"accessTTL"`
		RefreshTTL time.Duration `mapstructure:"refreshTTL"`
	} `mapstructure:"auth"`
	Table struct {
		AddCapacity int `mapstructure:"addCapacity"`
		MaxAddBytes int `mapstructure:"maxAddBytes"`
	} `mapstructure:"table"`
	Render struct {
		MaxTextBytes int `mapstructure:"maxTextBytes"`
		MaxLines     int `mapstructure:"maxLines"`
	} `mapstructure:"render"`
	Collab struct {
		RingCap   int `mapstructure:"ringCap"`
		Semaphore int `mapstructure:"semaphore"`
	} `mapstructure:"collab"`
	Debug struct {
		// 每次提交后把 piece 列表打到日志里
		DumpPieces bool `mapstructure:"dumpPieces"`
	} `mapstructure:"debug"`
}

// setDefaults：每个键都要有默认值，AutomaticEnv 才会在 Unmarshal 时读取对应的环境变量
func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 3002)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("auth.secret", "")
	v.SetDefault("table.maxAddBytes", 0)
	v.SetDefault("debug.dumpPieces", false)
	v.SetDefault("redis.addrs", []string{"127.0.0.1:6379"})
	v.SetDefault("kafka.topic", "doc-edits")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("auth.accessTTL", 30*time.Minute)
	v.SetDefault("auth.refreshTTL", 7*24*time.Hour)
	v.SetDefault("table.addCapacity", 10)
	v.SetDefault("render.maxTextBytes", 1<<20)
	v.SetDefault("render.maxLines", 65536)
	v.SetDefault("collab.ringCap", 1024)
	v.SetDefault("collab.semaphore", 100)
}

// Load 读取 pieceConfig.yaml，环境变量 PIECE_<SECTION>_<KEY> 覆盖文件里的值，
// 例如 PIECE_AUTH_SECRET、PIECE_DEBUG_DUMPPIECES。
// paths 为空时兼容从项目根目录或 backend 目录启动。
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("pieceConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("PIECE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
