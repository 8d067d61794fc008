package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StoreConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite, mysql or mongo
	DSN           string `mapstructure:"dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// RedisConfig is optional. An empty Addr keeps liveness and rate limits in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ChatConfig struct {
	PersistDelay     time.Duration `mapstructure:"persist_delay"`
	ImageRevealDelay time.Duration `mapstructure:"image_reveal_delay"`
	IdlePeriod       time.Duration `mapstructure:"idle_period"`
	DormantAfter     time.Duration `mapstructure:"dormant_after"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	Backpressure     string        `mapstructure:"backpressure"`
}

type UploadConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	AvatarDir  string        `mapstructure:"avatar_dir"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Upload UploadConfig `mapstructure:"upload"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("avatar_dir", "./avatars")
	v.SetDefault("read_limit", 8<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "chat.db")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "chatapp")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chat:")

	v.SetDefault("chat.persist_delay", "10s")
	v.SetDefault("chat.image_reveal_delay", "2s")
	v.SetDefault("chat.idle_period", "30s")
	v.SetDefault("chat.dormant_after", "72h")
	v.SetDefault("chat.send_buffer", 64)
	v.SetDefault("chat.backpressure", "drop")

	v.SetDefault("upload.limit", 5)
	v.SetDefault("upload.interval", "1m")
	v.SetDefault("upload.max_bytes", 2<<20)
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then CHAT_* environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("module", "config").Err(err).Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		return nil, errors.New("secret must be set")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).Bool("redis", cfg.Redis.Addr != "").Msg("config ready")
	return &cfg, nil
}
