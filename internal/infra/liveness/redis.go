package liveness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis keeps stamps as unix milliseconds under prefix+room, expiring after ttl.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ core.Liveness = (*Redis)(nil)

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(room domain.RoomName) string {
	return r.prefix + string(room)
}

func (r *Redis) Touch(ctx context.Context, room domain.RoomName, at time.Time) error {
	if err := r.client.Set(ctx, r.key(room), at.UnixMilli(), r.ttl).Err(); err != nil {
		return fmt.Errorf("touch room %s: %w: %w", room, domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Redis) LastSeen(ctx context.Context, room domain.RoomName) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, r.key(room)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last seen %s: %w: %w", room, domain.ErrStorageUnavailable, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last seen %s: bad stamp %q", room, val)
	}
	return time.UnixMilli(ms), true, nil
}

func (r *Redis) Forget(ctx context.Context, room domain.RoomName) error {
	if err := r.client.Del(ctx, r.key(room)).Err(); err != nil {
		return fmt.Errorf("forget room %s: %w: %w", room, domain.ErrStorageUnavailable, err)
	}
	return nil
}
