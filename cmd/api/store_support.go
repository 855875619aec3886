package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/passgate/internal/config"
	"github.com/yourusername/passgate/internal/storage"
)

// setupUserStore は設定に応じたユーザーストアと後始末用の関数を返します。
func setupUserStore(cfg *config.Config, logger *slog.Logger) (storage.UserStore, func(), error) {
	switch cfg.UserStore {
	case config.UserStoreRedis:
		opt, err := redis.ParseURL(cfg.UserStoreRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse USER_STORE_REDIS_URL: %w", err)
		}

		redisClient := redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", opt.Addr, err)
		}

		logger.Info("using redis user store", "addr", opt.Addr, "db", opt.DB)
		closeFn := func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
		return storage.NewRedisStore(redisClient), closeFn, nil

	default:
		// プロセス内メモリのため再起動でユーザーは消える
		logger.Info("using in-memory user store")
		return storage.NewLocalStore(), func() {}, nil
	}
}
