// Package cache keeps a short-lived copy of the public product listing in
// Redis so repeated catalogue reads skip the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront/storefront-go/internal/model"
)

const (
	productsKey        = "storefront:products:all"
	generationKey      = "storefront:products:gen"
	DefaultProductsTTL = time.Minute
)

// ProductCache stores the full newest-first product listing.
//
// Every invalidation advances a generation counter. A listing read from the
// database after a miss is written back only if the generation is still the
// one returned with that miss, so a listing that raced with a write never
// lands in the cache.
type ProductCache interface {
	// Products returns the cached listing and whether it was present. On a
	// miss, gen is the generation to hand to SetProducts.
	Products(ctx context.Context) (products []model.Product, gen int64, ok bool, err error)
	// SetProducts stores products unless the cache was invalidated after gen
	// was observed.
	SetProducts(ctx context.Context, gen int64, products []model.Product) error
	InvalidateProducts(ctx context.Context) error
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// RedisProductCache is a ProductCache backed by a single Redis string key.
type RedisProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProductCache creates a RedisProductCache. A non-positive ttl
// selects DefaultProductsTTL.
func NewRedisProductCache(client *redis.Client, ttl time.Duration) *RedisProductCache {
	if ttl <= 0 {
		ttl = DefaultProductsTTL
	}
	return &RedisProductCache{client: client, ttl: ttl}
}

func (c *RedisProductCache) Products(ctx context.Context) ([]model.Product, int64, bool, error) {
	vals, err := c.client.MGet(ctx, productsKey, generationKey).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading product cache: %w", err)
	}

	gen, err := parseGeneration(vals[1])
	if err != nil {
		return nil, 0, false, err
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}

	var products []model.Product
	if err := json.Unmarshal([]byte(data), &products); err != nil {
		return nil, gen, false, fmt.Errorf("decoding product cache: %w", err)
	}
	return products, gen, true, nil
}

func (c *RedisProductCache) SetProducts(ctx context.Context, gen int64, products []model.Product) error {
	if products == nil {
		products = []model.Product{}
	}

	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encoding product cache: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleListing
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, productsKey, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)

	// A concurrent invalidation wins; the next read repopulates.
	if errors.Is(err, errStaleListing) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing product cache: %w", err)
	}
	return nil
}

func (c *RedisProductCache) InvalidateProducts(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, productsKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidating product cache: %w", err)
	}
	return nil
}

var errStaleListing = errors.New("product listing is stale")

func parseGeneration(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected product cache generation %v", v)
	}
	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decoding product cache generation: %w", err)
	}
	return gen, nil
}

// Nop is a ProductCache that never holds anything.
type Nop struct{}

func (Nop) Products(context.Context) ([]model.Product, int64, bool, error) {
	return nil, 0, false, nil
}
func (Nop) SetProducts(context.Context, int64, []model.Product) error { return nil }
func (Nop) InvalidateProducts(context.Context) error                  { return nil }
