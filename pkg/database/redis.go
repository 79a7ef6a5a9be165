package database

import (
	"context"
	"fmt"
	"strings"

	"switchfuzz/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RedisParams struct {
	fx.In

	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// NewRedisClient returns nil when no redis endpoint is configured.
func NewRedisClient(p RedisParams) (*redis.Client, error) {
	if !p.Config.RedisEnabled() {
		p.Logger.Debug("no redis configured, stats are not published")
		return nil, nil
	}

	var client *redis.Client
	var err error
	if p.Config.RedisUrl != "" {
		client, err = newRedisClient(p.Config.RedisUrl)
	} else {
		client, err = newRedisFailoverClient(p.Config.RedisSentinelHosts, p.Config.RedisMasterName)
	}
	if err != nil {
		p.Logger.Error("Failed to create Redis client", zap.Error(err))
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	p.Logger.Debug("Redis client created successfully")
	return client, nil
}

func newRedisFailoverClient(redisSentinelHostsString, redisMasterName string) (*redis.Client, error) {
	redisSentinelHosts := strings.Split(redisSentinelHostsString, ",")

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    redisMasterName,
		SentinelAddrs: redisSentinelHosts,
		DB:            0,
	})
	return client, ping(client)
}

func newRedisClient(redisUrl string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	return client, ping(client)
}

func ping(client *redis.Client) error {
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
