package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisHost     = "localhost"
	defaultRedisPort     = 6379
	defaultRedisPoolSize = 10
	defaultRedisMinIdle  = 2
	defaultRedisTimeout  = 3 * time.Second
)

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedis creates a Redis client from the provided options and verifies
// connectivity with a single ping.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	host := option.Host
	if host == "" {
		host = defaultRedisHost
	}
	port := option.Port
	if port == 0 {
		port = defaultRedisPort
	}
	poolSize := option.PoolSize
	if poolSize <= 0 {
		poolSize = defaultRedisPoolSize
	}
	minIdle := option.MinIdleConns
	if minIdle <= 0 {
		minIdle = defaultRedisMinIdle
	}
	dialTimeout := option.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultRedisTimeout
	}
	readTimeout := option.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultRedisTimeout
	}
	writeTimeout := option.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     option.Password,
		DB:           option.DB,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
