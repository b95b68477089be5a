// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"schedulebot/config"

	"github.com/go-redis/redis/v8"
)

var (
	// SessionClient holds dialog sessions when SESSION_BACKEND=redis.
	SessionClient *redis.Client
	// RotationClient holds suggestion history when ROTATION_BACKEND=redis.
	RotationClient *redis.Client
)

func connectRedis(db int, purpose string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", purpose, err)
	}
	return client
}

// GetSessionClient returns the Redis client for dialog sessions.
func GetSessionClient() *redis.Client {
	if SessionClient == nil {
		SessionClient = connectRedis(config.AppConfig.RedisSessionDB, "Sessions")
	}
	return SessionClient
}

// GetRotationClient returns the Redis client for rotation memory.
func GetRotationClient() *redis.Client {
	if RotationClient == nil {
		RotationClient = connectRedis(config.AppConfig.RedisRotationDB, "Rotation")
	}
	return RotationClient
}

// RedisClients lists the clients opened so far, for health checks and shutdown.
func RedisClients() []*redis.Client {
	var out []*redis.Client
	for _, c := range []*redis.Client{SessionClient, RotationClient} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
