// Package setup opens the backing services named in the configuration.
package setup

import (
	"context"
	"fmt"

	"github.com/abhimm5/chatapp/internal/config"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/infra/liveness"
	"github.com/abhimm5/chatapp/internal/infra/persistence/mongostore"
	"github.com/abhimm5/chatapp/internal/infra/persistence/sqlstore"
	"github.com/abhimm5/chatapp/internal/infra/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func OpenStore(ctx context.Context, cfg config.StoreConfig, debug bool) (core.Store, error) {
	switch cfg.Driver {
	case "mongo":
		s, err := mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "mysql", "":
		s, err := sqlstore.Open(sqlstore.Config{Driver: cfg.Driver, DSN: cfg.DSN, Debug: debug})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenRedis returns nil when no address is configured.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info().Str("module", "infra.setup").Str("addr", cfg.Addr).Msg("redis connected")
	return client, nil
}

func NewLiveness(client *redis.Client, cfg config.Config) core.Liveness {
	if client == nil {
		return liveness.NewMemory()
	}
	return liveness.NewRedis(client, cfg.Redis.Prefix+"room:alive:", cfg.Chat.DormantAfter)
}

func NewUploadLimiter(client *redis.Client, cfg config.Config) ratelimit.Limiter {
	if client == nil {
		return ratelimit.NewMemory(cfg.Upload.Limit, cfg.Upload.Interval)
	}
	return ratelimit.NewRedis(client, cfg.Redis.Prefix+"upload:", cfg.Upload.Limit, cfg.Upload.Interval)
}
