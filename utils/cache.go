package utils

import (
	"context"
	"log"
	"time"

	"snapnow/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient is the generic cache client.
	CacheClient *redis.Client
	// LocationClient holds last-known locations and their pub/sub channels.
	LocationClient *redis.Client
)

func newRedisClient(db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
}

func mustPing(client *redis.Client, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", name, err)
	}
}

// InitRedis connects every Redis client the server needs.
func InitRedis() {
	InitCache()
	InitLocationCache()
}

// InitCache initializes the generic Redis cache client.
func InitCache() {
	CacheClient = newRedisClient(config.AppConfig.RedisCacheDB)
	mustPing(CacheClient, "Cache")
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitLocationCache initializes the Redis client for live locations.
func InitLocationCache() {
	LocationClient = newRedisClient(config.AppConfig.RedisLocationDB)
	mustPing(LocationClient, "Location")
}

// GetLocationClient returns the Redis client for live locations.
func GetLocationClient() *redis.Client {
	if LocationClient == nil {
		InitLocationCache()
	}
	return LocationClient
}

// CloseRedis closes every initialized client.
func CloseRedis() {
	for _, c := range []*redis.Client{CacheClient, LocationClient} {
		if c != nil {
			_ = c.Close()
		}
	}
}
