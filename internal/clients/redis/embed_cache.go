package redis

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
)

// EmbedCache memoizes oracle embeddings so repeated concept texts do not
// re-hit the embedding API. Misses are silent; a cache failure only costs an
// extra oracle call.
type EmbedCache interface {
	Get(ctx context.Context, text, language string) ([]float32, bool)
	Set(ctx context.Context, text, language string, vector []float32)
	Close() error
}

type embedCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

func NewEmbedCache(log *logger.Logger) (EmbedCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttl := 7 * 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("EMBED_CACHE_TTL_HOURS")); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil && hours > 0 {
			ttl = time.Duration(hours) * time.Hour
		}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &embedCache{
		log:    log.With("service", "RedisEmbedCache"),
		rdb:    rdb,
		ttl:    ttl,
		prefix: "embedding",
	}, nil
}

func (c *embedCache) key(text, language string) string {
	sum := md5.Sum([]byte(text + ":" + language))
	return fmt.Sprintf("%s:%x", c.prefix, sum)
}

func (c *embedCache) Get(ctx context.Context, text, language string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, c.key(text, language)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("embed cache get failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *embedCache) Set(ctx context.Context, text, language string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(text, language), raw, c.ttl).Err(); err != nil {
		c.log.Warn("embed cache set failed", "error", err)
	}
}

func (c *embedCache) Close() error {
	return c.rdb.Close()
}
