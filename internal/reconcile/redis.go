package reconcile

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/sokoline/sokoline/internal/config"
	"go.uber.org/zap"
)

// provideLocker builds the redis-backed sweep lock. Without a redis address
// the scheduler runs unlocked, which is fine for a single instance.
func provideLocker(cfg config.Config, log *zap.Logger) *Locker {
	if cfg.RedisAddr == "" {
		log.Named("reconcile").Info("redis not configured, sweep lock disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewLocker(client)
}
