package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions describes the Redis backing the location rate limiter and the
// proximity cooldown claims.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // below 1 uses 10
}

type RedisDB struct {
	Client *redis.Client
}

var (
	newRedisClient = redis.NewClient
	redisPing      = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
)

func (o RedisOptions) clientOptions() *redis.Options {
	poolSize := o.PoolSize
	if poolSize < 1 {
		poolSize = 10
	}
	minIdle := 3
	if minIdle > poolSize {
		minIdle = poolSize
	}
	return &redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
	}
}

func NewRedisDB(opts RedisOptions) (*RedisDB, error) {
	client := newRedisClient(opts.clientOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisPing(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}
	return &RedisDB{Client: client}, nil
}

func (r *RedisDB) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

func (r *RedisDB) Health(ctx context.Context) error {
	return redisPing(ctx, r.Client)
}
