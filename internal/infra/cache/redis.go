// Package cache holds the Redis-backed snapshot cache and rate-limit store,
// plus an in-process limiter for single-node deployments.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisConfig describes how to reach Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Connect creates a client and waits for Redis with exponential backoff.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.Warnf("redis connection failed: %v, retrying...", err)
			return err
		}
		return nil
	}, b)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	logrus.WithField("addr", cfg.Addr).Info("redis client initialized")
	return client, nil
}
