// Package redis is a thin wrapper over go-redis used by the redis record store.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps a go-redis client.
type Client struct {
	rdb *goredis.Client
}

// NewClient connects and pings the server.
func NewClient(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

// IsNil reports whether err means the key does not exist.
func IsNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Exists(ctx, keys...).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// ZAdd adds member to the sorted set at key with the given score.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

// ZRevRange returns members from highest to lowest score. stop is inclusive,
// -1 means the end of the set.
func (c *Client) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.ZRevRange(ctx, key, start, stop).Result()
}

// MGet returns the values for keys; missing keys come back as nil.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return c.rdb.MGet(ctx, keys...).Result()
}

// Update runs fn under WATCH on key and writes its result in a MULTI
// transaction, retrying a few times when the key changes underneath.
func (c *Client) Update(ctx context.Context, key string, fn func(current string) (string, error)) error {
	txf := func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < 5; i++ {
		err = c.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
