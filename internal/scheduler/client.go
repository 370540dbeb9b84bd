// Package scheduler runs the background delivery machinery: an asynq worker,
// the outbox dispatcher that feeds it, and a janitor for finished records.
package scheduler

import (
	"strings"

	"reportflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueue       = "default"
	defaultConcurrency = 10
)

// redisClientOpt builds the asynq connection options. REDIS_ADDR accepts a
// plain host:port or a full redis:// URL (managed Redis providers hand out
// the latter, with TLS baked into the scheme).
func redisClientOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	addr := cfg.GetRedisAddr()
	if strings.Contains(addr, "://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return asynq.RedisClientOpt{}, err
		}
		return asynq.RedisClientOpt{
			Addr:      opt.Addr,
			Password:  opt.Password,
			DB:        opt.DB,
			TLSConfig: opt.TLSConfig,
		}, nil
	}

	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: cfg.GetRedisPassword(),
	}, nil
}
